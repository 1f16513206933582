package mail

import (
	"context"
	"fmt"
	"time"

	"riseready-notifications/internal/common/config"

	gomail "gopkg.in/mail.v2"
)

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	send   func(m *gomail.Message) error
}

// NewSMTPMailer dials per message. Secure selects implicit TLS (port 465);
// otherwise STARTTLS is used when the server offers it.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.Secure
	dialer.Timeout = 15 * time.Second
	if !cfg.Secure {
		dialer.StartTLSPolicy = gomail.OpportunisticStartTLS
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	m := &SMTPMailer{dialer: dialer, from: from}
	m.send = func(msg *gomail.Message) error { return m.dialer.DialAndSend(msg) }
	return m
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := msg.From
	if from == "" {
		from = s.from
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	if err := s.send(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}
