package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/franqio/royaltyd/internal/charge/domain"
	"github.com/franqio/royaltyd/internal/charge/service"
	"github.com/franqio/royaltyd/internal/metrics"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Charges  domain.Service
	Adapters *service.AdapterSource
	Metrics  *metrics.Metrics
}

type Service struct {
	log      *zap.Logger
	charges  domain.Service
	adapters *service.AdapterSource
	metrics  *metrics.Metrics
}

func New(p Params) domain.WebhookService {
	return &Service{
		log:      p.Log.Named("charge.webhook"),
		charges:  p.Charges,
		adapters: p.Adapters,
		metrics:  p.Metrics,
	}
}

// Ingest authenticates, parses and applies one webhook delivery. The signature
// is checked before any payload inspection or charge lookup so a forged body
// can never probe which references exist.
func (s *Service) Ingest(ctx context.Context, gateway string, payload []byte, headers http.Header) (*domain.ApplyResult, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	if !domain.KnownGateway(gateway) {
		s.metrics.WebhooksReceived.WithLabelValues(gateway, "unknown_gateway").Inc()
		return nil, domain.ErrInvalidGateway
	}

	adapter, err := s.adapters.AdapterFor(ctx, gateway)
	if err != nil {
		s.metrics.WebhooksReceived.WithLabelValues(gateway, "config_error").Inc()
		return nil, err
	}

	if err := adapter.VerifyWebhook(ctx, payload, headers); err != nil {
		s.metrics.WebhooksReceived.WithLabelValues(gateway, "invalid_signature").Inc()
		s.log.Warn("webhook signature rejected", zap.String("gateway", gateway))
		return nil, err
	}

	if !json.Valid(payload) {
		s.metrics.WebhooksReceived.WithLabelValues(gateway, "malformed").Inc()
		return nil, domain.ErrInvalidPayload
	}

	event, err := adapter.ParseWebhook(ctx, payload)
	if err != nil {
		s.metrics.WebhooksReceived.WithLabelValues(gateway, "malformed").Inc()
		return nil, err
	}
	event.Source = domain.SourceWebhook
	event.Gateway = gateway
	event.EnsureEventID()

	result, err := s.charges.ApplyEvent(ctx, event)
	if err != nil {
		s.metrics.WebhooksReceived.WithLabelValues(gateway, "rejected").Inc()
		return nil, err
	}

	outcome := "accepted"
	if result.Duplicate {
		outcome = "duplicate"
	}
	s.metrics.WebhooksReceived.WithLabelValues(gateway, outcome).Inc()
	return result, nil
}
