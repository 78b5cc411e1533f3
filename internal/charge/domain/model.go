package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	GatewayBankSlip = "bankslip"
	GatewayInvoice  = "invoice"
	GatewayAltCard  = "altcard"
)

func KnownGateway(gateway string) bool {
	switch gateway {
	case GatewayBankSlip, GatewayInvoice, GatewayAltCard:
		return true
	}
	return false
}

// ChargeStatus is the lifecycle state of a charge on its gateway of record.
type ChargeStatus string

const (
	ChargeStatusIssued       ChargeStatus = "issued"
	ChargeStatusAwaiting     ChargeStatus = "awaiting_confirmation"
	ChargeStatusPaid         ChargeStatus = "paid"
	ChargeStatusFailed       ChargeStatus = "failed"
	ChargeStatusCanceled     ChargeStatus = "canceled"
)

// Terminal reports whether the status is final. Terminal charges never
// transition again; later observations are kept for audit only.
func (s ChargeStatus) Terminal() bool {
	switch s {
	case ChargeStatusPaid, ChargeStatusFailed, ChargeStatusCanceled:
		return true
	}
	return false
}

// ObservedStatus is the canonical, gateway-agnostic status vocabulary that
// adapters normalize provider statuses into.
type ObservedStatus string

const (
	ObservedPaid     ObservedStatus = "paid"
	ObservedPending  ObservedStatus = "pending"
	ObservedFailed   ObservedStatus = "failed"
	ObservedCanceled ObservedStatus = "canceled"
)

const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
)

type Charge struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	RoyaltyID         snowflake.ID   `json:"royalty_id" gorm:"not null;index"`
	EstablishmentID   snowflake.ID   `json:"establishment_id" gorm:"not null;index"`
	Gateway           string         `json:"gateway" gorm:"type:text;not null;index:ux_charges_gateway_ref,priority:1"`
	ExternalReference string         `json:"external_reference" gorm:"type:text;not null;index:ux_charges_gateway_ref,priority:2"`
	Amount            int64          `json:"amount" gorm:"not null"`
	DueDate           time.Time      `json:"due_date" gorm:"not null"`
	Status            ChargeStatus   `json:"status" gorm:"type:text;not null"`
	RawMetadata       datatypes.JSON `json:"raw_metadata" gorm:"type:jsonb"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"not null"`
}

func (Charge) TableName() string { return "charges" }

// PaymentEvent is the canonical status observation produced by webhook
// ingestion and by the poll sweep. Both sources share the (gateway, event_id)
// dedup key so the same underlying payment applies at most once.
type PaymentEvent struct {
	Source            string
	Gateway           string
	EventID           string
	ExternalReference string
	Observed          ObservedStatus
	ObservedAt        time.Time
	RawPayload        []byte
}

// EnsureEventID fills EventID with a deterministic hash when the provider did
// not supply a native event identifier. The timestamp is truncated to the
// second so provider-side retries within the same second collapse.
func (e *PaymentEvent) EnsureEventID() {
	if strings.TrimSpace(e.EventID) != "" {
		return
	}
	raw := fmt.Sprintf("%s|%s|%d", e.ExternalReference, e.Observed, e.ObservedAt.Truncate(time.Second).Unix())
	sum := sha256.Sum256([]byte(raw))
	e.EventID = hex.EncodeToString(sum[:16])
}

// EventRecord is the processed-event ledger row behind idempotent delivery.
type EventRecord struct {
	ID           snowflake.ID   `json:"id" gorm:"primaryKey"`
	Gateway      string         `json:"gateway" gorm:"type:text;not null;index:ux_payment_events_gateway_event,priority:1"`
	EventID      string         `json:"event_id" gorm:"type:text;not null;index:ux_payment_events_gateway_event,priority:2"`
	Source       string         `json:"source" gorm:"type:text;not null"`
	ChargeID     snowflake.ID   `json:"charge_id" gorm:"index"`
	Observed     string         `json:"observed" gorm:"type:text;not null"`
	ResultStatus string         `json:"result_status" gorm:"type:text"`
	Payload      datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ReceivedAt   time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt  *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// NextStatus resolves the transition a canonical observation implies for the
// current charge status. ok=false means no transition (and no CAS attempt).
func NextStatus(current ChargeStatus, observed ObservedStatus) (ChargeStatus, bool) {
	if current.Terminal() {
		return current, false
	}
	switch observed {
	case ObservedPaid:
		return ChargeStatusPaid, true
	case ObservedFailed:
		return ChargeStatusFailed, true
	case ObservedCanceled:
		return ChargeStatusCanceled, true
	case ObservedPending:
		if current == ChargeStatusIssued {
			return ChargeStatusAwaiting, true
		}
		return current, false
	}
	return current, false
}
