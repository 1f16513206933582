// internal/workers/notification/dispatch-notifications/handler.go
package dispatchnotifications

import (
	"context"
	"time"

	apperrors "riseready-notifications/internal/common/errors"
	"riseready-notifications/internal/common/logger"
	"riseready-notifications/internal/common/mail"
	"riseready-notifications/internal/common/metrics"
	"riseready-notifications/internal/common/observability"
	"riseready-notifications/internal/common/worker"
	"riseready-notifications/internal/models"
	"riseready-notifications/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Handler claims due notifications and fans each one out. The in-process and
// standalone pipelines differ only in the Publisher they pass in.
type Handler struct {
	config    *Config
	store     store.Store
	users     store.UserDirectory
	publisher Publisher
	mailer    mail.Mailer
	sms       SMSSender
	obs       *observability.Observability
	logger    logger.Logger
	errs      *apperrors.ErrorHandler

	now      func() time.Time
	newToken func() string
}

type Option func(*Handler)

// WithMailer enables email. A nil mailer keeps email disabled.
func WithMailer(m mail.Mailer) Option {
	return func(h *Handler) { h.mailer = m }
}

func WithSMS(s SMSSender) Option {
	return func(h *Handler) { h.sms = s }
}

func WithObservability(o *observability.Observability) Option {
	return func(h *Handler) { h.obs = o }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func NewHandler(config *Config, st store.Store, users store.UserDirectory, pub Publisher, log logger.Logger, opts ...Option) *Handler {
	log = log.WithFields(map[string]interface{}{
		"taskType": TaskType,
		"pipeline": config.Pipeline,
	})
	h := &Handler{
		config:    config,
		store:     st,
		users:     users,
		publisher: pub,
		logger:    log,
		errs:      apperrors.NewErrorHandler(log),
		now:       time.Now,
		newToken:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Cycle adapts RunOnce to the polling worker.
func (h *Handler) Cycle() worker.Cycle {
	return func(ctx context.Context) error {
		_, err := h.RunOnce(ctx)
		return err
	}
}

// RunOnce performs one pass: optional reclaim, claim, then per-record
// delivery. Only store failures before anything was claimed are returned;
// per-record failures are logged and counted in the summary.
func (h *Handler) RunOnce(ctx context.Context) (*Summary, error) {
	start := time.Now()
	pipeline := h.config.Pipeline

	metrics.CyclesActive.WithLabelValues(pipeline).Inc()
	defer metrics.CyclesActive.WithLabelValues(pipeline).Dec()

	ctx, span := h.obs.StartSpan(ctx, "dispatch.cycle", attribute.String("pipeline", pipeline))
	summary := &Summary{}

	var err error
	defer func() {
		summary.Duration = time.Since(start)
		metrics.CycleDuration.WithLabelValues(pipeline).Observe(summary.Duration.Seconds())

		status := "ok"
		if err != nil {
			status = "error"
		}
		h.obs.RecordCycle(ctx, pipeline, status, summary.Duration)
		h.obs.RecordDelivered(ctx, pipeline, summary.MarkedSent)
		observability.EndSpan(span, err)
	}()

	if h.config.ReclaimAfter > 0 {
		h.reclaim(ctx, summary)
	}

	batch, err := h.claim(ctx)
	if err != nil {
		h.errs.HandleStepError("claim", err, map[string]interface{}{"traceId": observability.TraceID(ctx)})
		return summary, err
	}
	summary.Token = batch.token
	summary.Due = batch.due
	summary.Claimed = len(batch.records)

	for i, n := range batch.records {
		if ctx.Err() != nil {
			h.release(ctx, batch.records[i:], batch.token, summary)
			break
		}
		h.deliver(ctx, n, batch.token, summary)
	}

	if summary.Claimed > 0 || summary.Reclaimed > 0 {
		h.logger.Info("dispatch pass finished", summary.fields())
	} else {
		h.logger.Debug("dispatch pass found nothing to deliver", summary.fields())
	}
	return summary, nil
}

// reclaim releases claims older than ReclaimAfter that never reached sent.
// A failure is logged and the pass continues with whatever is eligible.
func (h *Handler) reclaim(ctx context.Context, summary *Summary) {
	cutoff := h.now().Add(-h.config.ReclaimAfter)
	released, err := h.store.ReleaseStale(ctx, cutoff)
	if err != nil {
		h.errs.HandleStepError("reclaim", apperrors.NewStoreQueryFailedError("release_stale", err), nil)
		return
	}
	summary.Reclaimed = released
	if released > 0 {
		metrics.StaleClaimsReleased.WithLabelValues(h.config.Pipeline).Add(float64(released))
		h.logger.Warn("released stale claims", map[string]interface{}{
			"released": released,
			"cutoff":   cutoff.UTC().Format(time.RFC3339),
		})
	}
}

// release hands records that were claimed but never started back to the next
// pass. It runs after the cycle context is done, so it gets its own deadline.
func (h *Handler) release(ctx context.Context, records []models.Notification, token string, summary *Summary) {
	ids := make([]string, 0, len(records))
	for _, n := range records {
		ids = append(ids, n.ID)
	}

	fctx, cancel := h.finalizeContext(ctx)
	defer cancel()

	released, err := h.store.ReleaseClaims(fctx, ids, token)
	if err != nil {
		h.errs.HandleStepError("release_claims", apperrors.NewStoreQueryFailedError("release_claims", err), map[string]interface{}{
			"claimToken": token,
			"pending":    len(ids),
		})
		return
	}
	summary.Released = released
	metrics.ClaimsReleased.WithLabelValues(h.config.Pipeline).Add(float64(released))
	h.logger.Warn("cycle deadline reached, released unstarted claims", map[string]interface{}{
		"claimToken": token,
		"released":   released,
		"cause":      ctx.Err().Error(),
	})
}

// finalizeContext detaches from the cycle deadline so a record that was
// delivered can still be finalized.
func (h *Handler) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := h.config.FinalizeTimeout
	if timeout <= 0 {
		timeout = DefaultFinalizeTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
