// Package mail sends notification emails over SMTP or SES. A missing
// configuration means email is disabled, not an error.
package mail

import (
	"context"
	"fmt"

	"riseready-notifications/internal/common/aws"
	"riseready-notifications/internal/common/config"
)

type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New picks SMTP when it is fully configured, then SES when enabled.
// It returns a nil Mailer when neither is available.
func New(ctx context.Context, cfg config.IntegrationConfig) (Mailer, error) {
	if cfg.SMTP.Configured() {
		return NewSMTPMailer(cfg.SMTP), nil
	}
	if cfg.AWS.SES.Enabled {
		client, err := aws.NewSESClient(ctx, cfg.AWS.Region, cfg.AWS.SES.FromEmail)
		if err != nil {
			return nil, fmt.Errorf("ses mailer: %w", err)
		}
		return NewSESMailer(client), nil
	}
	return nil, nil
}
