package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/tabreaper/tabreaper/internal/logger"
	"github.com/tabreaper/tabreaper/internal/sweep"
)

// SweepRunner drives periodic sweeps. The ticker only fires while the
// policy is enabled; disabling the policy stops future ticks but never
// cancels a sweep already underway.
type SweepRunner struct {
	sweeper      *sweep.Sweeper
	policy       sweep.PolicyProvider
	logger       logger.Logger
	interval     time.Duration
	sweepOnStart bool
	stopCh       chan struct{}
	pokeCh       chan struct{}
}

// NewSweepRunner creates a new sweep runner.
func NewSweepRunner(
	s *sweep.Sweeper,
	policy sweep.PolicyProvider,
	log logger.Logger,
	interval time.Duration,
	sweepOnStart bool,
) *SweepRunner {
	return &SweepRunner{
		sweeper:      s,
		policy:       policy,
		logger:       log,
		interval:     interval,
		sweepOnStart: sweepOnStart,
		stopCh:       make(chan struct{}),
		pokeCh:       make(chan struct{}, 1),
	}
}

// Start begins the periodic sweep process.
func (sr *SweepRunner) Start(ctx context.Context) error {
	if sr.sweepOnStart && sr.policy.Current().Enabled {
		if err := sr.runOnce(ctx); err != nil {
			sr.logger.Error("startup sweep failed", logger.Error(err))
		}
	}

	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !sr.policy.Current().Enabled {
					continue
				}
				if err := sr.runOnce(ctx); err != nil {
					sr.logger.Error("scheduled sweep failed", logger.Error(err))
				}
			case <-sr.pokeCh:
				// Policy changed; nothing to do beyond re-reading it on the
				// next tick, but an enable flip deserves a prompt sweep.
				if sr.policy.Current().Enabled {
					if err := sr.runOnce(ctx); err != nil {
						sr.logger.Error("sweep after policy change failed", logger.Error(err))
					}
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the runner. An in-flight sweep finishes on its own.
func (sr *SweepRunner) Stop() {
	close(sr.stopCh)
}

// Poke nudges the runner after a policy change. Non-blocking; a pending
// poke absorbs later ones.
func (sr *SweepRunner) Poke() {
	select {
	case sr.pokeCh <- struct{}{}:
	default:
	}
}

func (sr *SweepRunner) runOnce(ctx context.Context) error {
	_, err := sr.sweeper.Run(ctx, sweep.Options{})
	if errors.Is(err, sweep.ErrSweepInProgress) {
		sr.logger.Debug("skipping tick, sweep already running")
		return nil
	}
	return err
}
