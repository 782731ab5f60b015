// Package refresh runs the ingestion pipeline on a schedule and on demand,
// guaranteeing at most one refresh at a time.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kurakb/kura/internal/ingest"
	"github.com/kurakb/kura/internal/log"
)

// Runner executes one ingestion pass.
type Runner interface {
	Run(ctx context.Context, since time.Time) (*ingest.Result, error)
}

// State is a snapshot of the scheduler's refresh state.
type State struct {
	LastRun     time.Time `json:"last_run,omitzero"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	InProgress  bool      `json:"in_progress"`
	LastError   string    `json:"last_error,omitempty"`
}

// Scheduler triggers refreshes periodically and coalesces concurrent requests
// into the run already in flight.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	cronSpec string
	logger   log.Logger

	mu    sync.Mutex
	state State
}

// New creates a Scheduler. When cronSpec is non-empty it takes precedence over
// interval; it must already be validated (see config.Validate).
func New(runner Runner, interval time.Duration, cronSpec string, logger log.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		cronSpec: cronSpec,
		logger:   logger,
	}
}

// State returns a copy of the current refresh state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trigger runs one refresh synchronously. It returns false without doing
// anything when a refresh is already in flight. Errors from the pipeline are
// recorded in the state, never propagated as a crash.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	s.mu.Lock()
	if s.state.InProgress {
		s.mu.Unlock()
		s.logger.Debug("refresh already in progress, coalescing")
		return false
	}
	since := s.state.LastSuccess
	started := time.Now()
	s.state.InProgress = true
	s.state.LastRun = started
	s.mu.Unlock()

	result, err := s.runner.Run(ctx, since)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.InProgress = false
	if err != nil {
		s.state.LastError = err.Error()
		s.logger.Warn("refresh failed",
			"since", since,
			"error", err)
		return true
	}
	s.state.LastSuccess = started
	s.state.LastError = ""
	s.logger.Info("refresh completed",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", len(result.Failed),
		"duration", result.Duration)
	return true
}

// Run blocks until ctx is canceled, triggering a refresh on each tick. An
// initial refresh runs immediately on start. Callers must track the goroutine
// with a WaitGroup.
func (s *Scheduler) Run(ctx context.Context) {
	s.Trigger(ctx)

	if s.cronSpec != "" {
		s.runCron(ctx)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

func (s *Scheduler) runCron(ctx context.Context) {
	c := cron.New()
	// The cron expression was validated at config load, AddFunc cannot fail here.
	if _, err := c.AddFunc(s.cronSpec, func() { s.Trigger(ctx) }); err != nil {
		s.logger.Error("invalid cron spec", "spec", s.cronSpec, "error", err)
		return
	}
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
}
