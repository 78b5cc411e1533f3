package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/franqio/royaltyd/internal/charge/domain"
	"github.com/franqio/royaltyd/internal/notify"
	royaltydomain "github.com/franqio/royaltyd/internal/royalty/domain"
)

func TestApplyEventWebhookPaid(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()
	chargeID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusChargeIssued,
	})
	seedCharge(t, f.db, &domain.Charge{
		ID:                chargeID,
		RoyaltyID:         royaltyID,
		EstablishmentID:   establishmentID,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-1",
		Amount:            5000,
		Status:            domain.ChargeStatusIssued,
	})

	result, err := f.svc.ApplyEvent(ctx, &domain.PaymentEvent{
		Source:            domain.SourceWebhook,
		Gateway:           domain.GatewayBankSlip,
		EventID:           "evt-1",
		ExternalReference: "boleto-1",
		Observed:          domain.ObservedPaid,
		ObservedAt:        f.clock.Now(),
		RawPayload:        []byte(`{"status":"paid"}`),
	})
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if !result.Transitioned {
		t.Fatal("expected transition to paid")
	}
	if result.Status != domain.ChargeStatusPaid {
		t.Fatalf("expected paid, got %s", result.Status)
	}

	if got := chargeStatus(t, f.db, chargeID); got != domain.ChargeStatusPaid {
		t.Fatalf("charge status = %s, want paid", got)
	}
	if got := royaltyStatus(t, f.db, royaltyID); got != royaltydomain.RoyaltyStatusPaid {
		t.Fatalf("royalty status = %s, want paid", got)
	}
	if f.sink.paidCount() != 1 {
		t.Fatalf("expected 1 payable settlement, got %d", f.sink.paidCount())
	}
	templates := f.sink.templates()
	if len(templates) != 1 || templates[0] != notify.TemplatePaymentConfirmed {
		t.Fatalf("expected payment_confirmed notification, got %v", templates)
	}
	if countEvents(t, f.db) != 1 {
		t.Fatalf("expected 1 event row, got %d", countEvents(t, f.db))
	}
}

func TestApplyEventDuplicateDelivery(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()
	chargeID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusChargeIssued,
	})
	seedCharge(t, f.db, &domain.Charge{
		ID:                chargeID,
		RoyaltyID:         royaltyID,
		EstablishmentID:   establishmentID,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-1",
		Amount:            5000,
		Status:            domain.ChargeStatusIssued,
	})

	event := func() *domain.PaymentEvent {
		return &domain.PaymentEvent{
			Source:            domain.SourceWebhook,
			Gateway:           domain.GatewayBankSlip,
			EventID:           "evt-1",
			ExternalReference: "boleto-1",
			Observed:          domain.ObservedPaid,
			ObservedAt:        f.clock.Now(),
			RawPayload:        []byte(`{"status":"paid"}`),
		}
	}

	first, err := f.svc.ApplyEvent(ctx, event())
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if !first.Transitioned {
		t.Fatal("first delivery should transition")
	}

	second, err := f.svc.ApplyEvent(ctx, event())
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("second delivery should be reported duplicate")
	}
	if second.Transitioned {
		t.Fatal("second delivery must not transition")
	}

	if countEvents(t, f.db) != 1 {
		t.Fatalf("expected 1 event row after redelivery, got %d", countEvents(t, f.db))
	}
	if f.sink.paidCount() != 1 {
		t.Fatalf("payable settled %d times, want 1", f.sink.paidCount())
	}
}

func TestApplyEventResumesUnprocessedEvent(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()
	chargeID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusChargeIssued,
	})
	seedCharge(t, f.db, &domain.Charge{
		ID:                chargeID,
		RoyaltyID:         royaltyID,
		EstablishmentID:   establishmentID,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-1",
		Amount:            5000,
		Status:            domain.ChargeStatusIssued,
	})

	// A first delivery that died after inserting its event record but
	// before moving the charge: the row exists with processed_at NULL.
	if err := f.db.Exec(
		`INSERT INTO payment_events (id, gateway, event_id, source, charge_id, observed, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.node.Generate(), domain.GatewayBankSlip, "evt-1", domain.SourceWebhook,
		chargeID, domain.ObservedPaid, []byte(`{"status":"paid"}`), f.clock.Now(),
	).Error; err != nil {
		t.Fatalf("seed stalled event: %v", err)
	}

	result, err := f.svc.ApplyEvent(ctx, &domain.PaymentEvent{
		Source:            domain.SourceWebhook,
		Gateway:           domain.GatewayBankSlip,
		EventID:           "evt-1",
		ExternalReference: "boleto-1",
		Observed:          domain.ObservedPaid,
		ObservedAt:        f.clock.Now(),
		RawPayload:        []byte(`{"status":"paid"}`),
	})
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if result.Duplicate {
		t.Fatal("redelivery of an unprocessed event must not be treated as duplicate")
	}
	if !result.Transitioned {
		t.Fatal("redelivery should complete the stalled transition")
	}

	if got := chargeStatus(t, f.db, chargeID); got != domain.ChargeStatusPaid {
		t.Fatalf("charge status = %s, want %s", got, domain.ChargeStatusPaid)
	}
	if got := royaltyStatus(t, f.db, royaltyID); got != royaltydomain.RoyaltyStatusPaid {
		t.Fatalf("royalty status = %s, want %s", got, royaltydomain.RoyaltyStatusPaid)
	}
	if countEvents(t, f.db) != 1 {
		t.Fatalf("expected 1 event row after resume, got %d", countEvents(t, f.db))
	}

	var pending int
	if err := f.db.Raw(
		`SELECT COUNT(1) FROM payment_events WHERE event_id = ? AND processed_at IS NULL`, "evt-1",
	).Scan(&pending).Error; err != nil {
		t.Fatalf("pending events: %v", err)
	}
	if pending != 0 {
		t.Fatal("resumed event should be marked processed")
	}
}

func TestApplyEventWebhookThenPoll(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()
	chargeID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusChargeIssued,
	})
	seedCharge(t, f.db, &domain.Charge{
		ID:                chargeID,
		RoyaltyID:         royaltyID,
		EstablishmentID:   establishmentID,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-1",
		Amount:            5000,
		Status:            domain.ChargeStatusIssued,
	})

	if _, err := f.svc.ApplyEvent(ctx, &domain.PaymentEvent{
		Source:            domain.SourceWebhook,
		Gateway:           domain.GatewayBankSlip,
		EventID:           "evt-1",
		ExternalReference: "boleto-1",
		Observed:          domain.ObservedPaid,
		ObservedAt:        f.clock.Now(),
	}); err != nil {
		t.Fatalf("webhook delivery: %v", err)
	}

	// The sweep sees the same payment later under its own synthetic event id.
	f.clock.Advance(time.Hour)
	pollEvent := &domain.PaymentEvent{
		Source:            domain.SourcePoll,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-1",
		Observed:          domain.ObservedPaid,
		ObservedAt:        f.clock.Now(),
	}
	result, err := f.svc.ApplyEvent(ctx, pollEvent)
	if err != nil {
		t.Fatalf("poll delivery: %v", err)
	}
	if result.Transitioned {
		t.Fatal("poll must not re-transition a paid charge")
	}

	if f.sink.paidCount() != 1 {
		t.Fatalf("payable settled %d times, want 1", f.sink.paidCount())
	}
	if got := chargeStatus(t, f.db, chargeID); got != domain.ChargeStatusPaid {
		t.Fatalf("charge status = %s, want paid", got)
	}
}

func TestApplyEventTerminalStateImmutable(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()
	chargeID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusPaid,
	})
	seedCharge(t, f.db, &domain.Charge{
		ID:                chargeID,
		RoyaltyID:         royaltyID,
		EstablishmentID:   establishmentID,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-1",
		Amount:            5000,
		Status:            domain.ChargeStatusPaid,
	})

	result, err := f.svc.ApplyEvent(ctx, &domain.PaymentEvent{
		Source:            domain.SourceWebhook,
		Gateway:           domain.GatewayBankSlip,
		EventID:           "evt-late-fail",
		ExternalReference: "boleto-1",
		Observed:          domain.ObservedFailed,
		ObservedAt:        f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if result.Transitioned {
		t.Fatal("terminal charge must not transition")
	}

	if got := chargeStatus(t, f.db, chargeID); got != domain.ChargeStatusPaid {
		t.Fatalf("charge status = %s, want paid", got)
	}
	// The late observation still lands in the ledger for audit.
	if countEvents(t, f.db) != 1 {
		t.Fatalf("expected audit event row, got %d", countEvents(t, f.db))
	}
}

func TestApplyEventPendingAdvancesIssuedOnly(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()
	chargeID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusChargeIssued,
	})
	seedCharge(t, f.db, &domain.Charge{
		ID:                chargeID,
		RoyaltyID:         royaltyID,
		EstablishmentID:   establishmentID,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-1",
		Amount:            5000,
		Status:            domain.ChargeStatusIssued,
	})

	first, err := f.svc.ApplyEvent(ctx, &domain.PaymentEvent{
		Source:            domain.SourcePoll,
		Gateway:           domain.GatewayBankSlip,
		EventID:           "evt-pending-1",
		ExternalReference: "boleto-1",
		Observed:          domain.ObservedPending,
		ObservedAt:        f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("first pending: %v", err)
	}
	if !first.Transitioned || first.Status != domain.ChargeStatusAwaiting {
		t.Fatalf("expected issued -> awaiting_confirmation, got %+v", first)
	}

	second, err := f.svc.ApplyEvent(ctx, &domain.PaymentEvent{
		Source:            domain.SourcePoll,
		Gateway:           domain.GatewayBankSlip,
		EventID:           "evt-pending-2",
		ExternalReference: "boleto-1",
		Observed:          domain.ObservedPending,
		ObservedAt:        f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("second pending: %v", err)
	}
	if second.Transitioned {
		t.Fatal("pending on awaiting charge must not transition")
	}
}

func TestApplyEventUnknownReference(t *testing.T) {
	f := setupChargeService(t)

	_, err := f.svc.ApplyEvent(context.Background(), &domain.PaymentEvent{
		Source:            domain.SourceWebhook,
		Gateway:           domain.GatewayBankSlip,
		EventID:           "evt-1",
		ExternalReference: "never-issued",
		Observed:          domain.ObservedPaid,
		ObservedAt:        f.clock.Now(),
	})
	if !errors.Is(err, domain.ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
	if countEvents(t, f.db) != 0 {
		t.Fatal("unknown reference must not write an event row")
	}
}

func TestApplyEventFailedKeepsRoyalty(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()
	chargeID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusChargeIssued,
	})
	seedCharge(t, f.db, &domain.Charge{
		ID:                chargeID,
		RoyaltyID:         royaltyID,
		EstablishmentID:   establishmentID,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-1",
		Amount:            5000,
		Status:            domain.ChargeStatusAwaiting,
	})

	result, err := f.svc.ApplyEvent(ctx, &domain.PaymentEvent{
		Source:            domain.SourceWebhook,
		Gateway:           domain.GatewayBankSlip,
		EventID:           "evt-fail",
		ExternalReference: "boleto-1",
		Observed:          domain.ObservedFailed,
		ObservedAt:        f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if !result.Transitioned || result.Status != domain.ChargeStatusFailed {
		t.Fatalf("expected failed transition, got %+v", result)
	}

	// Re-issuance is an operator action; the royalty stays where it was.
	if got := royaltyStatus(t, f.db, royaltyID); got != royaltydomain.RoyaltyStatusChargeIssued {
		t.Fatalf("royalty status = %s, want charge_issued", got)
	}
	templates := f.sink.templates()
	if len(templates) != 1 || templates[0] != notify.TemplateChargeFailed {
		t.Fatalf("expected charge_failed notification, got %v", templates)
	}
	if f.sink.paidCount() != 0 {
		t.Fatal("failed charge must not settle the payable")
	}
}

func TestIssueChargeHappyPath(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedGatewayConfig(t, f.db, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusPending,
	})

	charge, err := f.svc.IssueCharge(ctx, royaltyID)
	if err != nil {
		t.Fatalf("issue charge: %v", err)
	}
	if charge.ExternalReference != "ext-001" {
		t.Fatalf("external reference = %s, want ext-001", charge.ExternalReference)
	}
	if charge.Status != domain.ChargeStatusIssued {
		t.Fatalf("charge status = %s, want issued", charge.Status)
	}
	if f.adapter.calls() != 1 {
		t.Fatalf("adapter called %d times, want 1", f.adapter.calls())
	}

	if got := royaltyStatus(t, f.db, royaltyID); got != royaltydomain.RoyaltyStatusChargeIssued {
		t.Fatalf("royalty status = %s, want charge_issued", got)
	}

	var payables int
	if err := f.db.Raw(`SELECT COUNT(1) FROM payables WHERE charge_id = ?`, charge.ID).Scan(&payables).Error; err != nil {
		t.Fatalf("count payables: %v", err)
	}
	if payables != 1 {
		t.Fatalf("expected 1 payable, got %d", payables)
	}

	templates := f.sink.templates()
	if len(templates) != 1 || templates[0] != notify.TemplateChargeIssued {
		t.Fatalf("expected charge_issued notification, got %v", templates)
	}
}

func TestIssueChargeAmountTooSmall(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedGatewayConfig(t, f.db, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    8000,
		RoyaltyAmount:   400, // below the bankslip minimum of 500
		Status:          royaltydomain.RoyaltyStatusPending,
	})

	_, err := f.svc.IssueCharge(ctx, royaltyID)
	if !errors.Is(err, domain.ErrAmountTooSmall) {
		t.Fatalf("expected ErrAmountTooSmall, got %v", err)
	}
	if f.adapter.calls() != 0 {
		t.Fatal("gateway must not be called for a too-small amount")
	}
	if countCharges(t, f.db) != 0 {
		t.Fatal("no charge row may exist after rejection")
	}
}

func TestIssueChargeDuplicateOpenCharge(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedGatewayConfig(t, f.db, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusChargeIssued,
	})
	seedCharge(t, f.db, &domain.Charge{
		ID:                f.node.Generate(),
		RoyaltyID:         royaltyID,
		EstablishmentID:   establishmentID,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-open",
		Amount:            5000,
		Status:            domain.ChargeStatusAwaiting,
	})

	_, err := f.svc.IssueCharge(ctx, royaltyID)
	if !errors.Is(err, domain.ErrDuplicateCharge) {
		t.Fatalf("expected ErrDuplicateCharge, got %v", err)
	}
	if f.adapter.calls() != 0 {
		t.Fatal("gateway must not be called while a charge is open")
	}
}

func TestIssueChargeAfterFailedCharge(t *testing.T) {
	f := setupChargeService(t)
	ctx := context.Background()

	royaltyID := f.node.Generate()
	establishmentID := f.node.Generate()

	seedEstablishment(t, f.db, establishmentID, domain.GatewayBankSlip)
	seedGatewayConfig(t, f.db, domain.GatewayBankSlip)
	seedRoyalty(t, f.db, &royaltydomain.Royalty{
		ID:              royaltyID,
		EstablishmentID: establishmentID,
		GrossRevenue:    100000,
		RoyaltyAmount:   5000,
		Status:          royaltydomain.RoyaltyStatusAwaitingPayment,
	})
	seedCharge(t, f.db, &domain.Charge{
		ID:                f.node.Generate(),
		RoyaltyID:         royaltyID,
		EstablishmentID:   establishmentID,
		Gateway:           domain.GatewayBankSlip,
		ExternalReference: "boleto-dead",
		Amount:            5000,
		Status:            domain.ChargeStatusFailed,
	})

	charge, err := f.svc.IssueCharge(ctx, royaltyID)
	if err != nil {
		t.Fatalf("issue after failed charge: %v", err)
	}
	if charge.Status != domain.ChargeStatusIssued {
		t.Fatalf("charge status = %s, want issued", charge.Status)
	}
	if countCharges(t, f.db) != 2 {
		t.Fatalf("expected 2 charge rows, got %d", countCharges(t, f.db))
	}
}
