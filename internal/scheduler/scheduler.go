// Package scheduler drives the periodic suspension sweep. It owns no
// policy: it only ticks, hands control to the policy engine, and
// publishes the result.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guestgate/guestgate/internal/channels"
	"github.com/guestgate/guestgate/internal/policy"
)

// Sweeper manages the periodic suspension sweep loop.
type Sweeper struct {
	engine *policy.Engine
	events *channels.EventChannels
	logger *slog.Logger

	interval time.Duration

	// Lifecycle management
	running bool
	runMu   sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup

	lastMu     sync.Mutex
	lastResult *policy.SweepResult
}

// NewSweeper creates a sweep loop with the given interval.
func NewSweeper(engine *policy.Engine, events *channels.EventChannels, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		events:   events,
		logger:   logger.With("component", "sweeper"),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Run starts the sweep loop and blocks until the context is cancelled
// or Stop is called. The first sweep fires one interval after start.
func (s *Sweeper) Run(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	s.running = true
	s.runMu.Unlock()

	s.logger.Info("starting suspension sweeper", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled, shutting down")
			s.shutdown()
			return ctx.Err()
		case <-s.done:
			s.logger.Info("sweeper done signal received")
			s.shutdown()
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for in-flight work.
func (s *Sweeper) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.runMu.Unlock()
	close(s.done)
	s.wg.Wait()
}

// IsRunning returns whether the loop is active.
func (s *Sweeper) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// LastResult returns the most recent sweep outcome, if any.
func (s *Sweeper) LastResult() (policy.SweepResult, bool) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if s.lastResult == nil {
		return policy.SweepResult{}, false
	}
	return *s.lastResult, true
}

func (s *Sweeper) sweep(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	result, err := s.engine.SweepAll(ctx)
	if err != nil {
		if errors.Is(err, policy.ErrSweepInProgress) {
			s.logger.Warn("skipping tick, previous sweep still running")
			return
		}
		s.logger.Error("suspension sweep failed", "error", err)
		return
	}

	s.lastMu.Lock()
	s.lastResult = &result
	s.lastMu.Unlock()

	if s.events != nil {
		s.events.PublishSweepCompleted(channels.SweepCompletedEvent{
			Checked:          result.Checked,
			NewlySuspended:   result.NewlySuspended,
			AlreadySuspended: result.AlreadySuspended,
			Reactivated:      result.Reactivated,
			Errors:           len(result.Errors),
			StartedAt:        result.StartedAt,
			CompletedAt:      result.CompletedAt,
		})
	}
}

func (s *Sweeper) shutdown() {
	s.wg.Wait()
	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()
}
