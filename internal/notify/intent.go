package notify

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Templates the engine emits. Formatting and delivery channels live outside
// this core; only the template name and context travel in the intent.
const (
	TemplateChargeIssued     = "charge_issued"
	TemplatePaymentConfirmed = "payment_confirmed"
	TemplateChargeFailed     = "charge_failed"
)

// NotificationIntent asks an external channel to message an establishment.
type NotificationIntent struct {
	EstablishmentID snowflake.ID
	Template        string
	Context         map[string]any
	EnqueuedAt      time.Time
}

// PayablePaidIntent asks the accounting subsystem to settle a payable.
type PayablePaidIntent struct {
	ChargeID snowflake.ID
	Amount   int64
	PaidAt   time.Time
}
