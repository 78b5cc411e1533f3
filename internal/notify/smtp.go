package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg SMTPConfig
}

func NewSMTP(cfg SMTPConfig) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to string, template string, data map[string]any) error {
	if strings.TrimSpace(to) == "" {
		return nil
	}
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	subject := subjectFor(template)
	var body strings.Builder
	for key, value := range data {
		fmt.Fprintf(&body, "%s: %v\r\n", key, value)
	}
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", to, subject, body.String()))

	return smtp.SendMail(addr, auth, p.cfg.From, []string{to}, msg)
}

func subjectFor(template string) string {
	switch template {
	case TemplateChargeIssued:
		return "Nova cobrança de royalties"
	case TemplatePaymentConfirmed:
		return "Pagamento de royalties confirmado"
	case TemplateChargeFailed:
		return "Cobrança de royalties não concluída"
	default:
		return "Notificação"
	}
}
