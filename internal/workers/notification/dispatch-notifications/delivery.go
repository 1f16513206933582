// internal/workers/notification/dispatch-notifications/delivery.go
package dispatchnotifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	apperrors "riseready-notifications/internal/common/errors"
	"riseready-notifications/internal/common/mail"
	"riseready-notifications/internal/common/metrics"
	"riseready-notifications/internal/common/observability"
	"riseready-notifications/internal/common/realtime"
	"riseready-notifications/internal/models"
	"riseready-notifications/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

// deliver pushes n in real time, emails and texts it when allowed, then
// marks it sent. Every step logs its own failure; none stops the others.
func (h *Handler) deliver(ctx context.Context, n models.Notification, token string, summary *Summary) {
	ctx, span := h.obs.StartSpan(ctx, "dispatch.deliver",
		attribute.String("notification.id", n.ID),
		attribute.String("notification.priority", string(n.Priority)),
	)
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	fields := map[string]interface{}{
		"notificationId": n.ID,
		"userId":         n.UserID,
		"claimToken":     token,
	}
	failed := false

	if err := h.publish(ctx, n); err != nil {
		h.fail(metrics.ChannelRealtime, "realtime_publish", err, fields)
		failed = true
	} else {
		summary.Published++
		metrics.DeliveriesSucceeded.WithLabelValues(h.config.Pipeline, metrics.ChannelRealtime).Inc()
	}

	if user := h.lookupUser(ctx, n, fields); user != nil {
		if h.mailer != nil && user.WantsEmail() {
			if err := h.mailer.Send(ctx, h.buildEmail(n, user)); err != nil {
				h.fail(metrics.ChannelEmail, "email_send", apperrors.NewEmailSendFailedError(user.Email, err), fields)
				failed = true
			} else {
				summary.Emailed++
				metrics.DeliveriesSucceeded.WithLabelValues(h.config.Pipeline, metrics.ChannelEmail).Inc()
			}
		}

		if h.sms != nil && n.Priority == models.PriorityHigh && user.WantsSMS() {
			if _, err := h.sms.SendSMS(ctx, user.Phone, smsText(n)); err != nil {
				h.fail(metrics.ChannelSMS, "sms_send", apperrors.NewSMSSendFailedError(err), fields)
				failed = true
			} else {
				summary.Texted++
				metrics.DeliveriesSucceeded.WithLabelValues(h.config.Pipeline, metrics.ChannelSMS).Inc()
			}
		}
	}

	fctx, cancel := h.finalizeContext(ctx)
	defer cancel()
	if err := h.store.MarkSent(fctx, n.ID, token, h.now()); err != nil {
		metrics.MarkSentFailures.WithLabelValues(h.config.Pipeline).Inc()
		h.errs.HandleStepError("mark_sent", apperrors.NewMarkSentFailedError(n.ID, err), fields)
		spanErr = err
		failed = true
	} else {
		summary.MarkedSent++
		metrics.NotificationsMarkedSent.WithLabelValues(h.config.Pipeline).Inc()
	}

	if failed {
		summary.Failures++
	}
}

func (h *Handler) publish(ctx context.Context, n models.Notification) error {
	if h.publisher == nil {
		return apperrors.NewBusNotInitializedError()
	}
	if err := h.publisher.Publish(ctx, n.UserID, realtime.EventNotification, n); err != nil {
		if errors.Is(err, realtime.ErrBusNotInitialized) {
			return apperrors.NewBusNotInitializedError()
		}
		return apperrors.NewRealtimePublishFailedError(n.UserID, err)
	}
	return nil
}

// lookupUser loads the owner only when some channel needs it. A failed
// lookup skips email and SMS for this record.
func (h *Handler) lookupUser(ctx context.Context, n models.Notification, fields map[string]interface{}) *models.User {
	if h.users == nil || (h.mailer == nil && h.sms == nil) {
		return nil
	}
	user, err := h.users.GetUser(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.Warn("notification owner not found, skipping email", fields)
			return nil
		}
		h.errs.HandleStepError("user_lookup", apperrors.NewUserLookupFailedError(n.UserID, err), fields)
		return nil
	}
	return user
}

func (h *Handler) fail(channel, step string, err error, fields map[string]interface{}) {
	stdErr := h.errs.HandleStepError(step, err, fields)
	metrics.DeliveriesFailed.WithLabelValues(h.config.Pipeline, channel, string(stdErr.Code)).Inc()
}

func (h *Handler) openURL(n models.Notification) string {
	link := n.Link
	if link != "" && !strings.HasPrefix(link, "/") && !strings.Contains(link, "://") {
		link = "/" + link
	}
	if strings.Contains(link, "://") {
		return link
	}
	return h.config.AppBaseURL + link
}

func (h *Handler) buildEmail(n models.Notification, user *models.User) mail.Message {
	subject := strings.TrimSpace(n.Title)
	if subject == "" {
		subject = FallbackSubject
	}
	url := h.openURL(n)

	return mail.Message{
		To:      user.Email,
		Subject: subject,
		Text:    n.Message + "\n\nOpen: " + url,
		HTML: fmt.Sprintf(`<p>%s</p><p><a href="%s">Open in RiseReady</a></p>`,
			strings.ReplaceAll(html.EscapeString(n.Message), "\n", "<br>"),
			html.EscapeString(url)),
	}
}

func smsText(n models.Notification) string {
	text := n.Message
	if n.Title != "" {
		text = n.Title + ": " + n.Message
	}
	if r := []rune(text); len(r) > 160 {
		text = string(r[:157]) + "..."
	}
	return text
}
