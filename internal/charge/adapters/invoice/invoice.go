package invoice

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
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
	return domain.GatewayInvoice
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
		zap.L().Warn("invoice webhook secret not configured, signature verification disabled",
			zap.String("gateway", domain.GatewayInvoice),
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
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount_cents"`
	DueDate     string `json:"due_date"`
	PayerName   string `json:"payer_name"`
	PayerTaxID  string `json:"payer_tax_id"`
	PayerEmail  string `json:"payer_email,omitempty"`
}

type invoiceObject struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
	PDFURL           string `json:"pdf_url"`
	PaidAt           string `json:"paid_at"`
}

func (a *Adapter) IssueCharge(ctx context.Context, req domain.IssueRequest) (*domain.IssueResult, error) {
	payload := issueRequest{
		Reference:   req.RoyaltyID.String(),
		AmountCents: req.Amount,
		DueDate:     req.DueDate.Format("2006-01-02"),
		PayerName:   req.PayerName,
		PayerTaxID:  req.PayerDocument,
		PayerEmail:  req.PayerEmail,
	}

	var resp invoiceObject
	if err := adapters.DoJSON(ctx, a.client, http.MethodPost, a.baseURL+"/v1/invoices", a.headers(), payload, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &domain.IssueResult{
		ExternalReference: resp.ID,
		RawMetadata:       raw,
	}, nil
}

func (a *Adapter) QueryStatus(ctx context.Context, externalReference string) (domain.ObservedStatus, json.RawMessage, error) {
	var resp invoiceObject
	endpoint := fmt.Sprintf("%s/v1/invoices/%s", a.baseURL, url.PathEscape(externalReference))
	if err := adapters.DoJSON(ctx, a.client, http.MethodGet, endpoint, a.headers(), nil, &resp); err != nil {
		return "", nil, err
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return "", nil, err
	}
	return mapStatus(resp.Status), raw, nil
}

// VerifyWebhook checks the Invoice-Signature header, a comma separated list of
// t=<unix> and one or more v1=<hex hmac> pairs. The signed payload is
// "<t>.<raw body>".
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return nil
	}

	sigHeader := strings.TrimSpace(headers.Get("Invoice-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

type webhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    webhookEventRef `json:"data"`
}

type webhookEventRef struct {
	Object json.RawMessage `json:"object"`
}

func (a *Adapter) ParseWebhook(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	var object invoiceObject
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(object.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	observedAt := time.Now().UTC()
	if event.Created > 0 {
		observedAt = time.Unix(event.Created, 0).UTC()
	}

	return &domain.PaymentEvent{
		Source:            domain.SourceWebhook,
		Gateway:           domain.GatewayInvoice,
		EventID:           strings.TrimSpace(event.ID),
		ExternalReference: strings.TrimSpace(object.ID),
		Observed:          mapStatus(object.Status),
		ObservedAt:        observedAt,
		RawPayload:        payload,
	}, nil
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

func mapStatus(status string) domain.ObservedStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid":
		return domain.ObservedPaid
	case "uncollectible":
		return domain.ObservedFailed
	case "void":
		return domain.ObservedCanceled
	case "draft", "open":
		return domain.ObservedPending
	default:
		zap.L().Warn("unmapped invoice status, treating as pending",
			zap.String("gateway", domain.GatewayInvoice),
			zap.String("status", status),
		)
		return domain.ObservedPending
	}
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
