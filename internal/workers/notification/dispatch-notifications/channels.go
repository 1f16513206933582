// internal/workers/notification/dispatch-notifications/channels.go
package dispatchnotifications

import (
	"context"
	"fmt"

	"riseready-notifications/internal/common/aws"
	"riseready-notifications/internal/common/config"
	"riseready-notifications/internal/common/logger"
	"riseready-notifications/internal/common/mail"
)

// ChannelOptions builds the optional email and SMS channels. Missing mail
// settings disable email without an error.
func ChannelOptions(ctx context.Context, cfg config.IntegrationConfig, log logger.Logger) ([]Option, error) {
	var opts []Option

	mailer, err := mail.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("mail transport: %w", err)
	}
	if mailer != nil {
		opts = append(opts, WithMailer(mailer))
		log.Info("email delivery enabled", map[string]interface{}{"smtp": cfg.SMTP.Configured()})
	} else {
		log.Info("email delivery disabled, no mail transport configured", nil)
	}

	if cfg.AWS.SNS.Enabled {
		sms, err := aws.NewSNSClient(ctx, cfg.AWS.Region, cfg.AWS.SNS.SenderID)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		opts = append(opts, WithSMS(sms))
		log.Info("sms delivery enabled for high priority notifications", map[string]interface{}{"region": cfg.AWS.Region})
	}

	return opts, nil
}
