package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/noah-isme/oncall-api/internal/models"
	"github.com/noah-isme/oncall-api/pkg/config"
)

// SMTPSink emails shift transitions to a fixed recipient list.
type SMTPSink struct {
	cfg    config.SMTPConfig
	client *mail.Client
}

// NewSMTPSink connects a mail client for transition delivery.
func NewSMTPSink(cfg config.SMTPConfig) (*SMTPSink, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithSSL(),
		mail.WithPort(cfg.Port),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &SMTPSink{cfg: cfg, client: client}, nil
}

// Deliver implements Sink.
func (s *SMTPSink) Deliver(ctx context.Context, t models.ShiftTransition) error {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(s.cfg.To...); err != nil {
		return fmt.Errorf("set recipients: %w", err)
	}
	msg.Subject(fmt.Sprintf("On-call handover: %s → %s", t.LayerName, t.CurrentAssignee))
	msg.SetBodyString(mail.TypeTextPlain, FormatSummary(t))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send transition mail: %w", err)
	}
	return nil
}

// Close releases the SMTP connection.
func (s *SMTPSink) Close() error {
	return s.client.Close()
}
