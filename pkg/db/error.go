package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a unique constraint
// violation. Charge issuance hits ux_charges_gateway_ref when two
// issuers race on the same royalty, and event ingestion relies on
// ux_payment_events_gateway_event for redelivery dedup, so callers
// need to tell this apart from other write failures. Drivers surface
// the violation differently and gorm only translates some of them,
// hence the message sniffing per dialect.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate key value violates unique constraint"):
		// PostgreSQL, SQLSTATE 23505
		return true
	case strings.Contains(msg, "Error 1062"):
		// MySQL ER_DUP_ENTRY
		return true
	case strings.Contains(msg, "UNIQUE constraint failed"):
		// SQLite, the in-memory test databases
		return true
	}

	return false
}
