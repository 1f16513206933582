// Package worker runs a cycle function on a fixed cadence.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrAlreadyStarted = errors.New("worker already started")

// Cycle is one unit of polling work. Its context carries the per-cycle
// timeout.
type Cycle func(ctx context.Context) error

// PollingWorker runs its cycle once on Start and then once per interval.
// A tick never waits for the previous cycle; overlapping cycles must be safe
// for the cycle itself.
type PollingWorker struct {
	name         string
	interval     time.Duration
	cycleTimeout time.Duration
	cycle        Cycle
	logger       *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup

	started  atomic.Int64
	inFlight atomic.Int64
}

func NewPollingWorker(name string, interval, cycleTimeout time.Duration, cycle Cycle, logger *zap.Logger) *PollingWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollingWorker{
		name:         name,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		cycle:        cycle,
		logger:       logger.With(zap.String("worker", name)),
	}
}

// Start launches the first cycle immediately and schedules the rest.
// Cancelling ctx stops scheduling, like Stop. Cycles already running are
// detached from ctx and finish under their own timeout.
func (w *PollingWorker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("worker %s: interval must be positive", w.name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	cycleParent := context.WithoutCancel(ctx)

	go func() {
		defer close(w.done)

		w.launch(cycleParent)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				w.launch(cycleParent)
			}
		}
	}()

	w.logger.Info("worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("cycleTimeout", w.cycleTimeout),
	)
	return nil
}

func (w *PollingWorker) launch(parent context.Context) {
	n := w.started.Add(1)
	w.wg.Add(1)
	w.inFlight.Add(1)

	go func() {
		defer w.wg.Done()
		defer w.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("cycle panicked", zap.Int64("cycle", n), zap.Any("panic", r))
			}
		}()

		ctx := parent
		if w.cycleTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(parent, w.cycleTimeout)
			defer cancel()
		}

		if err := w.cycle(ctx); err != nil {
			w.logger.Error("cycle failed", zap.Int64("cycle", n), zap.Error(err))
		}
	}()
}

// Stop halts future cycles and waits for started ones until ctx expires.
func (w *PollingWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	w.logger.Info("stopping worker", zap.Int64("inFlight", w.inFlight.Load()))
	<-done

	idle := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		w.logger.Info("worker stopped", zap.Int64("cycles", w.started.Load()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker %s: %d cycles still running: %w", w.name, w.inFlight.Load(), ctx.Err())
	}
}

// Cycles reports how many cycles have been launched.
func (w *PollingWorker) Cycles() int64 {
	return w.started.Load()
}

func (w *PollingWorker) InFlight() int64 {
	return w.inFlight.Load()
}
