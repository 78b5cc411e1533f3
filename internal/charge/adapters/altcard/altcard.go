package altcard

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
	return domain.GatewayAltCard
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	baseURL, ok := adapters.ReadString(cfg.Config, "base_url")
	if !ok || baseURL == "" {
		return nil, domain.ErrInvalidConfig
	}
	accessToken, ok := adapters.ReadString(cfg.Config, "access_token")
	if !ok || accessToken == "" {
		return nil, domain.ErrInvalidConfig
	}

	secret, _ := adapters.ReadString(cfg.Config, "webhook_secret")
	if secret == "" {
		zap.L().Warn("altcard webhook secret not configured, signature verification disabled",
			zap.String("gateway", domain.GatewayAltCard),
		)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Adapter{
		baseURL:       strings.TrimRight(baseURL, "/"),
		accessToken:   accessToken,
		webhookSecret: secret,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

type Adapter struct {
	baseURL       string
	accessToken   string
	webhookSecret string
	client        *http.Client
}

type preferenceRequest struct {
	ExternalReference string `json:"external_reference"`
	Amount            int64  `json:"amount"`
	ExpirationDate    string `json:"expiration_date"`
	PayerName         string `json:"payer_name"`
	PayerEmail        string `json:"payer_email,omitempty"`
	PayerDocument     string `json:"payer_document"`
}

type preferenceResponse struct {
	PaymentID    string `json:"payment_id"`
	Status       string `json:"status"`
	InitPoint    string `json:"init_point"`
	PixQRCode    string `json:"pix_qr_code"`
	PixCopyPaste string `json:"pix_copy_paste"`
}

func (a *Adapter) IssueCharge(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	payload := preferenceRequest{
		ExternalReference: req.RoyaltyID.String(),
		Amount:            req.Amount,
		ExpirationDate:    req.DueDate.Format(time.RFC3339),
		PayerName:         req.PayerName,
		PayerEmail:        req.PayerEmail,
		PayerDocument:     req.PayerDocument,
	}

	var resp preferenceResponse
	if err := adapters.DoJSON(ctx, a.client, http.MethodPost, a.baseURL+"/v1/payments", a.headers(), payload, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.PaymentID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &domain.IssueResult{
		ExternalReference: resp.PaymentID,
		RawMetadata:       raw,
	}, nil
}

type paymentObject struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	PaidAt    string `json:"paid_at"`
}

func (a *Adapter) QueryStatus(ctx context.Context, externalReference string) (domain.ObservedStatus, json.RawMessage, error) {
	var resp paymentObject
	endpoint := fmt.Sprintf("%s/v1/payments/%s", a.baseURL, url.PathEscape(externalReference))
	if err := adapters.DoJSON(ctx, a.client, http.MethodGet, endpoint, a.headers(), nil, &resp); err != nil {
		return "", nil, err
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return "", nil, err
	}
	return mapStatus(resp.Status), raw, nil
}

func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return nil
	}

	signature := strings.TrimSpace(headers.Get("X-Signature"))
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
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func (a *Adapter) ParseWebhook(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.PaymentID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	observedAt := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(event.CreatedAt)); err == nil {
		observedAt = parsed.UTC()
	}

	return &domain.PaymentEvent{
		Source:            domain.SourceWebhook,
		Gateway:           domain.GatewayAltCard,
		EventID:           strings.TrimSpace(event.ID),
		ExternalReference: strings.TrimSpace(event.PaymentID),
		Observed:          mapStatus(event.Status),
		ObservedAt:        observedAt,
		RawPayload:        payload,
	}, nil
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.accessToken}
}

func mapStatus(status string) domain.ObservedStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return domain.ObservedPaid
	case "rejected":
		return domain.ObservedFailed
	case "cancelled", "canceled", "refunded", "charged_back":
		return domain.ObservedCanceled
	case "pending", "in_process":
		return domain.ObservedPending
	default:
		zap.L().Warn("unmapped altcard status, treating as pending",
			zap.String("gateway", domain.GatewayAltCard),
			zap.String("status", status),
		)
		return domain.ObservedPending
	}
}
