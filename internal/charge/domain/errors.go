package domain

import "errors"

var (
	// Local validation, rejected before any gateway call.
	ErrAmountTooSmall  = errors.New("amount_too_small")
	ErrDuplicateCharge = errors.New("duplicate_charge")

	// Gateway issuance failures. Unavailable is retryable by the caller;
	// rejected is surfaced to the operator and never auto-retried.
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayRejected    = errors.New("gateway_rejected")

	// Webhook/reconciliation boundary.
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrUnknownReference = errors.New("unknown_reference")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")

	ErrInvalidGateway  = errors.New("invalid_gateway")
	ErrGatewayNotFound = errors.New("gateway_not_found")
	ErrInvalidConfig   = errors.New("invalid_config")
)
