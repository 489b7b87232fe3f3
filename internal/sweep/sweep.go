// Package sweep decides and executes tab lifecycle actions. A sweep
// enumerates the browser, classifies every tab against the policy and the
// per-domain rules, closes or discards the eligible ones, and reconciles the
// activity clock with what actually happened.
package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/host"
	"github.com/tabreaper/tabreaper/internal/logger"
	"github.com/tabreaper/tabreaper/internal/rules"
	"github.com/tabreaper/tabreaper/internal/tracker"
)

// ErrSweepInProgress is returned when a sweep is requested while another is
// still running. Sweeps never queue.
var ErrSweepInProgress = errors.New("sweep already in progress")

// DefaultDiscardBatch caps how many discards run back to back before the
// sweep yields to context cancellation.
const DefaultDiscardBatch = 5

// PolicyProvider yields the currently effective policy.
type PolicyProvider interface {
	Current() domain.Policy
}

// Result summarizes one sweep.
type Result struct {
	Scanned    int
	Closed     int
	Discarded  int
	Registered int
	Failed     int
}

// Options shape a single run.
type Options struct {
	// Manual marks a user-invoked sweep: only the invoking tab is shielded,
	// every other active tab is fair game.
	Manual bool
	// InvokerTabID is the tab the manual request came from; 0 when unknown.
	InvokerTabID int64
}

// Sweeper runs at most one sweep at a time.
type Sweeper struct {
	host       host.Host
	enum       *host.Enumerator
	tracker    *tracker.Tracker
	resolver   *rules.Resolver
	policy     PolicyProvider
	logger     logger.Logger
	batchSize  int
	now        func() time.Time
	inProgress atomic.Bool
}

type Option func(*Sweeper)

// WithBatchSize overrides the discard batch size.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(h host.Host, trk *tracker.Tracker, res *rules.Resolver, pol PolicyProvider, log logger.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		host:      h,
		enum:      host.NewEnumerator(h, log),
		tracker:   trk,
		resolver:  res,
		policy:    pol,
		logger:    log,
		batchSize: DefaultDiscardBatch,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether a sweep is currently executing.
func (s *Sweeper) Running() bool {
	return s.inProgress.Load()
}

// Run executes one sweep. Concurrent calls beyond the first get
// ErrSweepInProgress.
func (s *Sweeper) Run(ctx context.Context, opts Options) (Result, error) {
	if !s.inProgress.CompareAndSwap(false, true) {
		return Result{}, ErrSweepInProgress
	}
	defer s.inProgress.Store(false)

	start := s.now()
	res, err := s.run(ctx, opts)
	if err != nil {
		return res, err
	}

	s.logger.Info("sweep finished",
		logger.Bool("manual", opts.Manual),
		logger.Int("scanned", res.Scanned),
		logger.Int("closed", res.Closed),
		logger.Int("discarded", res.Discarded),
		logger.Int("registered", res.Registered),
		logger.Int("failed", res.Failed),
		logger.Duration("took", s.now().Sub(start)))
	return res, nil
}

func (s *Sweeper) run(ctx context.Context, opts Options) (Result, error) {
	var res Result

	tabs, err := s.enum.Enumerate(ctx)
	if err != nil {
		if errors.Is(err, host.ErrNoTabs) {
			return res, nil
		}
		return res, err
	}
	res.Scanned = len(tabs)

	protected := s.protectedSet(ctx, opts)
	pol := s.policy.Current()
	now := s.now()
	mutated := false

	var toClose []domain.TabSnapshot
	var toDiscard []domain.TabSnapshot

	for _, tab := range tabs {
		if protected[tab.ID] {
			continue
		}
		if opts.Manual {
			// Manual sweeps shield the invoker only; an active tab in
			// another window is fair game.
			tab.Active = false
		}

		last, known := s.tracker.Get(tab.ID)
		if !known {
			// First sighting; start its clock even when a rule shields it,
			// so a later rule change finds an honest age.
			s.tracker.Register(tab.ID, now)
			res.Registered++
			mutated = true
			continue
		}

		verdict := domain.Classify(tab, last, now, pol, s.resolver.Decide(tab))

		switch verdict.Action {
		case domain.ActionClose:
			toClose = append(toClose, tab)
		case domain.ActionDiscard:
			if !tab.Discarded {
				toDiscard = append(toDiscard, tab)
			}
		}
	}

	closed, closeFailed := s.closeTabs(ctx, toClose)
	for _, id := range closed {
		s.tracker.Unregister(id)
		mutated = true
	}
	res.Closed = len(closed)
	res.Failed += closeFailed

	discarded, discardFailed := s.discardTabs(ctx, toDiscard)
	for _, id := range discarded {
		// A discarded tab starts a fresh countdown toward closing.
		s.tracker.RegisterNow(id)
		mutated = true
	}
	res.Discarded = len(discarded)
	res.Failed += discardFailed

	if mutated {
		if err := s.tracker.Flush(ctx); err != nil {
			s.logger.Warn("failed to persist activity clock after sweep", logger.Error(err))
		}
	}
	return res, nil
}

// protectedSet computes the tabs a sweep must never touch. A scheduled sweep
// shields the active tab of every window; a manual sweep shields only the
// tab it was invoked from, so the user can reap their other windows on
// demand.
func (s *Sweeper) protectedSet(ctx context.Context, opts Options) map[int64]bool {
	if opts.Manual {
		set := make(map[int64]bool, 1)
		if opts.InvokerTabID > 0 {
			set[opts.InvokerTabID] = true
		}
		return set
	}
	active, err := s.enum.ActiveTabs(ctx)
	if err != nil {
		// Fall back to the Active flag on each snapshot, which Classify
		// honors on its own.
		s.logger.Warn("failed to resolve active tabs, relying on snapshots", logger.Error(err))
		return nil
	}
	return active
}

// closeTabs tries the batch call first and falls back to closing one by one,
// tolerating individual failures.
func (s *Sweeper) closeTabs(ctx context.Context, tabs []domain.TabSnapshot) (closed []int64, failed int) {
	if len(tabs) == 0 {
		return nil, 0
	}

	ids := make([]int64, len(tabs))
	for i, t := range tabs {
		ids[i] = t.ID
	}

	if err := s.host.CloseTabs(ctx, ids); err == nil {
		return ids, 0
	} else {
		s.logger.Warn("batch close failed, retrying per tab", logger.Error(err))
	}

	for _, tab := range tabs {
		if err := s.host.CloseTab(ctx, tab.ID); err != nil {
			failed++
			s.logger.Warn("failed to close tab",
				logger.Int64("tab_id", tab.ID),
				logger.String("url", tab.URL),
				logger.Error(err))
			continue
		}
		closed = append(closed, tab.ID)
	}
	return closed, failed
}

// discardTabs freezes tabs in small batches, checking for cancellation
// between batches.
func (s *Sweeper) discardTabs(ctx context.Context, tabs []domain.TabSnapshot) (discarded []int64, failed int) {
	for i, tab := range tabs {
		if i > 0 && i%s.batchSize == 0 {
			select {
			case <-ctx.Done():
				return discarded, failed
			default:
			}
		}
		if err := s.host.DiscardTab(ctx, tab.ID); err != nil {
			failed++
			s.logger.Warn("failed to discard tab",
				logger.Int64("tab_id", tab.ID),
				logger.String("url", tab.URL),
				logger.Error(err))
			continue
		}
		discarded = append(discarded, tab.ID)
	}
	return discarded, failed
}
