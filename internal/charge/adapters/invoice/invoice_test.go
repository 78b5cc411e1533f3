package invoice

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/franqio/royaltyd/internal/charge/domain"
)

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "inv_secret"
	payload := []byte(`{"id":"evt-1","type":"invoice.paid","data":{"object":{"id":"in-1","status":"paid"}}}`)
	timestamp := time.Now().Unix()

	adapter := &Adapter{webhookSecret: secret}

	header := http.Header{}
	header.Set("Invoice-Signature", buildSignatureHeader(secret, payload, timestamp))
	if err := adapter.VerifyWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	header.Set("Invoice-Signature", buildSignatureHeader("wrong", payload, timestamp))
	if err := adapter.VerifyWebhook(context.Background(), payload, header); err == nil {
		t.Fatal("expected invalid signature error")
	}

	header.Set("Invoice-Signature", "garbage")
	if err := adapter.VerifyWebhook(context.Background(), payload, header); err == nil {
		t.Fatal("expected error for malformed header")
	}
}

func TestParseWebhook(t *testing.T) {
	adapter := &Adapter{}

	tests := []struct {
		name     string
		status   string
		observed domain.ObservedStatus
	}{
		{"paid", "paid", domain.ObservedPaid},
		{"open maps to pending", "open", domain.ObservedPending},
		{"void maps to canceled", "void", domain.ObservedCanceled},
		{"uncollectible maps to failed", "uncollectible", domain.ObservedFailed},
		{"unmapped treated as pending", "processing", domain.ObservedPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := fmt.Sprintf(
				`{"id":"evt-1","type":"invoice.updated","created":1748779200,"data":{"object":{"id":"in-1","status":%q}}}`,
				tt.status,
			)
			event, err := adapter.ParseWebhook(context.Background(), []byte(payload))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if event.Observed != tt.observed {
				t.Fatalf("observed = %s, want %s", event.Observed, tt.observed)
			}
			if event.EventID != "evt-1" {
				t.Fatalf("event id = %s, want evt-1", event.EventID)
			}
			if event.ExternalReference != "in-1" {
				t.Fatalf("external reference = %s, want in-1", event.ExternalReference)
			}
			if !event.ObservedAt.Equal(time.Unix(1748779200, 0).UTC()) {
				t.Fatalf("observed at = %s, want event created time", event.ObservedAt)
			}
		})
	}
}

func TestParseWebhookRejectsMissingInvoiceID(t *testing.T) {
	adapter := &Adapter{}
	payload := []byte(`{"id":"evt-1","type":"invoice.paid","data":{"object":{"status":"paid"}}}`)
	if _, err := adapter.ParseWebhook(context.Background(), payload); err == nil {
		t.Fatal("expected error for missing invoice id")
	}
}

func buildSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signed := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
