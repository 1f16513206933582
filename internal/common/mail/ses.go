package mail

import (
	"context"

	"riseready-notifications/internal/common/aws"
)

type SESMailer struct {
	client *aws.SESClient
}

func NewSESMailer(client *aws.SESClient) *SESMailer {
	return &SESMailer{client: client}
}

func (s *SESMailer) Send(ctx context.Context, msg Message) error {
	_, err := s.client.SendEmail(ctx, msg.From, msg.To, msg.Subject, msg.Text, msg.HTML)
	return err
}
