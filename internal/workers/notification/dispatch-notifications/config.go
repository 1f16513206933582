// internal/workers/notification/dispatch-notifications/config.go
package dispatchnotifications

import (
	"strings"
	"time"

	"riseready-notifications/internal/common/config"
)

type Config struct {
	Pipeline     string
	BatchSize    int
	ReclaimAfter time.Duration // 0 leaves stuck claims alone
	AppBaseURL   string

	// FinalizeTimeout bounds MarkSent and claim release, which run detached
	// from the cycle deadline.
	FinalizeTimeout time.Duration
}

func LoadConfig(cfg config.DispatchConfig, pipeline string) *Config {
	c := &Config{
		Pipeline:     pipeline,
		BatchSize:    cfg.BatchSize,
		ReclaimAfter: cfg.ReclaimAfterDuration(),
		AppBaseURL:   strings.TrimRight(cfg.AppBaseURL, "/"),

		FinalizeTimeout: DefaultFinalizeTimeout,
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Pipeline == "" {
		c.Pipeline = PipelineStandalone
	}
	return c
}
