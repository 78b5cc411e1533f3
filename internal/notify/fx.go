package notify

import (
	"context"

	"go.uber.org/fx"

	"github.com/franqio/royaltyd/internal/config"
)

var Module = fx.Module("notify",
	fx.Provide(NewProvider),
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) Sink { return d }),
	fx.Invoke(registerShutdown),
)

// NewProvider delivers over SMTP when a host is configured, otherwise drops
// notifications. Installs without a mail relay still settle payables.
func NewProvider(cfg config.Config) Provider {
	if cfg.SMTPHost == "" {
		return NoOpProvider{}
	}
	return NewSMTP(SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

func registerShutdown(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			d.Close()
			return nil
		},
	})
}
