// internal/workers/notification/dispatch-notifications/models.go
package dispatchnotifications

import (
	"context"
	"time"
)

const (
	TaskType = "dispatch-notifications"

	DefaultBatchSize       = 25
	DefaultFinalizeTimeout = 10 * time.Second
	FallbackSubject        = "You have a new notification"
)

// Pipelines label where a dispatcher runs.
const (
	PipelineInProcess  = "in-process"
	PipelineStandalone = "standalone"
)

// Publisher pushes an event to a user's real-time room. The hub, the
// websocket relay client and the Redis relay all satisfy it.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload any) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

// Summary describes one pass.
type Summary struct {
	Token      string        `json:"token,omitempty"`
	Reclaimed  int64         `json:"reclaimed"`
	Released   int64         `json:"released"`
	Due        int           `json:"due"`
	Claimed    int           `json:"claimed"`
	Published  int           `json:"published"`
	Emailed    int           `json:"emailed"`
	Texted     int           `json:"texted"`
	MarkedSent int           `json:"markedSent"`
	Failures   int           `json:"failures"`
	Duration   time.Duration `json:"duration"`
}

func (s *Summary) fields() map[string]interface{} {
	return map[string]interface{}{
		"claimToken": s.Token,
		"reclaimed":  s.Reclaimed,
		"released":   s.Released,
		"due":        s.Due,
		"claimed":    s.Claimed,
		"published":  s.Published,
		"emailed":    s.Emailed,
		"texted":     s.Texted,
		"markedSent": s.MarkedSent,
		"failures":   s.Failures,
		"durationMs": s.Duration.Milliseconds(),
	}
}
