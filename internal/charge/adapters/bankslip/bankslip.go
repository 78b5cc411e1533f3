package bankslip

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/franqio/royaltyd/internal/charge/adapters"
	"github.com/franqio/royaltyd/internal/charge/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Gateway() string {
	return domain.GatewayBankSlip
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	baseURL, ok := adapters.ReadString(cfg.Config, "base_url")
	if !ok || baseURL == "" {
		return nil, domain.ErrInvalidConfig
	}
	apiKey, ok := adapters.ReadString(cfg.Config, "api_key")
	if !ok || apiKey == "" {
		return nil, domain.ErrInvalidConfig
	}

	secret, _ := adapters.ReadString(cfg.Config, "webhook_secret")
	if secret == "" {
		zap.L().Warn("bankslip webhook secret not configured, signature verification disabled",
			zap.String("gateway", domain.GatewayBankSlip),
		)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Adapter{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		webhookSecret: secret,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

type Adapter struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

type issueRequest struct {
	OurNumber     string `json:"our_number"`
	Amount        int64  `json:"amount"`
	DueDate       string `json:"due_date"`
	PayerName     string `json:"payer_name"`
	PayerDocument string `json:"payer_document"`
	PayerAddress  string `json:"payer_address,omitempty"`
}

type issueResponse struct {
	BoletoID      string `json:"boleto_id"`
	Status        string `json:"status"`
	DigitableLine string `json:"digitable_line"`
	Barcode       string `json:"barcode"`
	PixQRCode     string `json:"pix_qr_code"`
	PixCopyPaste  string `json:"pix_copy_paste"`
	ExpiresAt     string `json:"expires_at"`
}

func (a *Adapter) IssueCharge(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	payload := issueRequest{
		OurNumber:     req.RoyaltyID.String(),
		Amount:        req.Amount,
		DueDate:       req.DueDate.Format("2006-01-02"),
		PayerName:     req.PayerName,
		PayerDocument: req.PayerDocument,
		PayerAddress:  req.PayerAddress,
	}

	var resp issueResponse
	if err := adapters.DoJSON(ctx, a.client, http.MethodPost, a.baseURL+"/v1/boletos", a.headers(), payload, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.BoletoID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &domain.IssueResult{
		ExternalReference: resp.BoletoID,
		RawMetadata:       raw,
	}, nil
}

type statusResponse struct {
	BoletoID string `json:"boleto_id"`
	Status   string `json:"status"`
	PaidAt   string `json:"paid_at"`
}

func (a *Adapter) QueryStatus(ctx context.Context, externalReference string) (domain.ObservedStatus, json.RawMessage, error) {
	var resp statusResponse
	endpoint := fmt.Sprintf("%s/v1/boletos/%s", a.baseURL, url.PathEscape(externalReference))
	if err := adapters.DoJSON(ctx, a.client, http.MethodGet, endpoint, a.headers(), nil, &resp); err != nil {
		return "", nil, err
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return "", nil, err
	}
	return mapStatus(resp.Status), raw, nil
}

// VerifyWebhook checks the hex HMAC-SHA256 of the raw body carried in the
// X-Webhook-Signature header. With no secret configured verification is a
// no-op.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return nil
	}

	signature := strings.TrimSpace(headers.Get("X-Webhook-Signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type webhookEvent struct {
	EventID    string `json:"event_id"`
	BoletoID   string `json:"boleto_id"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}

func (a *Adapter) ParseWebhook(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.BoletoID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.PaymentEvent{
		Source:            domain.SourceWebhook,
		Gateway:           domain.GatewayBankSlip,
		EventID:           strings.TrimSpace(event.EventID),
		ExternalReference: strings.TrimSpace(event.BoletoID),
		Observed:          mapStatus(event.Status),
		ObservedAt:        parseTimestamp(event.OccurredAt),
		RawPayload:        payload,
	}, nil
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

func mapStatus(status string) domain.ObservedStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "settled":
		return domain.ObservedPaid
	case "rejected":
		return domain.ObservedFailed
	case "expired", "cancelled", "canceled":
		return domain.ObservedCanceled
	case "registered", "pending":
		return domain.ObservedPending
	default:
		zap.L().Warn("unmapped bankslip status, treating as pending",
			zap.String("gateway", domain.GatewayBankSlip),
			zap.String("status", status),
		)
		return domain.ObservedPending
	}
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}
