package domain

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
)

// AdapterConfig carries one gateway's credentials and endpoints, loaded from
// the gateway_configs table. Timeout bounds every outbound call the adapter
// makes and is resolved from the reconciler settings by the caller.
type AdapterConfig struct {
	Gateway string
	Config  map[string]any
	Timeout time.Duration
}

type AdapterFactory interface {
	Gateway() string
	NewAdapter(cfg AdapterConfig) (GatewayAdapter, error)
}

// IssueRequest is the gateway-facing slice of a royalty charge.
type IssueRequest struct {
	RoyaltyID     snowflake.ID
	Amount        int64 // minor units
	DueDate       time.Time
	PayerName     string
	PayerDocument string
	PayerEmail    string
	PayerAddress  string
}

// IssueResult is what the provider hands back on successful issuance. Payment
// instructions (digitable line, barcode, PIX QR, hosted URL) stay opaque in
// RawMetadata; only the external reference is interpreted.
type IssueResult struct {
	ExternalReference string
	RawMetadata       json.RawMessage
}

// GatewayAdapter wraps one provider's charge-creation, status-query and
// webhook handling behind a single capability set.
type GatewayAdapter interface {
	IssueCharge(ctx context.Context, req IssueRequest) (*IssueResult, error)
	QueryStatus(ctx context.Context, externalReference string) (ObservedStatus, json.RawMessage, error)
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error
	ParseWebhook(ctx context.Context, payload []byte) (*PaymentEvent, error)
}
