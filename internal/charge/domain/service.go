package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// ApplyResult reports what applying a canonical event did.
type ApplyResult struct {
	ChargeID     snowflake.ID
	Transitioned bool
	Status       ChargeStatus
	Duplicate    bool
}

type Service interface {
	IssueCharge(ctx context.Context, royaltyID snowflake.ID) (*Charge, error)
	ApplyEvent(ctx context.Context, event *PaymentEvent) (*ApplyResult, error)
}

type WebhookService interface {
	Ingest(ctx context.Context, gateway string, payload []byte, headers http.Header) (*ApplyResult, error)
}
