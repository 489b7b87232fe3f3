package integration

import (
	"context"
	"testing"
	"time"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/events"
	"github.com/tabreaper/tabreaper/internal/host"
	"github.com/tabreaper/tabreaper/internal/host/hostmock"
	"github.com/tabreaper/tabreaper/internal/logger"
	"github.com/tabreaper/tabreaper/internal/rules"
	"github.com/tabreaper/tabreaper/internal/sweep"
	"github.com/tabreaper/tabreaper/internal/tracker"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fixedPolicy struct{ pol domain.Policy }

func (p fixedPolicy) Current() domain.Policy { return p.pol }

// TestSweepLifecycle drives the whole pipeline in process: events stamp the
// clock, time passes, and successive sweeps first observe, then evict.
func TestSweepLifecycle(t *testing.T) {
	log := logger.New("error", false)
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	mock := hostmock.New(
		domain.TabSnapshot{ID: 1, WindowID: 10, Active: true, URL: "https://mail.example.com/inbox"},
		domain.TabSnapshot{ID: 2, WindowID: 10, URL: "https://news.example.com/article"},
		domain.TabSnapshot{ID: 3, WindowID: 10, Pinned: true, URL: "https://chat.example.com/"},
		domain.TabSnapshot{ID: 4, WindowID: 10, URL: "https://docs.example.com/spec"},
	)

	trk := tracker.New(nil, log, tracker.Options{Debounce: time.Hour, Now: clk.Now})
	resolver := rules.NewResolver(nil, log)
	if err := resolver.Add(context.Background(), "docs.example.com", rules.ActionNeverClose, 0); err != nil {
		t.Fatal(err)
	}

	sweeper := sweep.New(mock, trk, resolver, fixedPolicy{domain.DefaultPolicy()}, log,
		sweep.WithClock(clk.Now))

	ctx := context.Background()

	// First sweep: nothing is tracked yet, so every inactive tab is
	// registered and nothing is touched.
	res, err := sweeper.Run(ctx, sweep.Options{})
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if res.Closed != 0 || res.Discarded != 0 || res.Registered != 3 {
		t.Fatalf("first sweep result = %+v, want 3 registrations only", res)
	}

	// Thirteen hours pass, past the 12h default limit.
	clk.advance(13 * time.Hour)

	// The user touches tab 2 just before the next sweep.
	trk.Register(2, clk.Now())

	res, err = sweeper.Run(ctx, sweep.Options{})
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	// Tab 1 is active, tab 2 was just touched, tab 3 is pinned (discard),
	// tab 4 is protected by its never-close rule.
	if res.Closed != 0 {
		t.Errorf("second sweep closed %d tabs, want 0", res.Closed)
	}
	if got := mock.Discarded(); len(got) != 1 || got[0] != 3 {
		t.Errorf("discarded = %v, want [3]", got)
	}

	// Another thirteen hours with no activity anywhere.
	clk.advance(13 * time.Hour)

	res, err = sweeper.Run(ctx, sweep.Options{})
	if err != nil {
		t.Fatalf("third sweep: %v", err)
	}

	// Tab 2 is now stale and closes. Tab 3 was discarded last sweep, which
	// restarted its countdown, so it is stale again and stays discarded.
	// Tab 4 is still protected.
	if got := mock.Closed(); len(got) != 1 || got[0] != 2 {
		t.Errorf("closed = %v, want [2]", got)
	}
	if _, ok := trk.Get(2); ok {
		t.Error("closed tab still tracked")
	}
	if _, ok := trk.Get(4); !ok {
		t.Error("protected tab lost its clock entry")
	}
}

// TestEventDrivenFreshness checks that browser activity observed through the
// event stream keeps a tab alive across a sweep.
func TestEventDrivenFreshness(t *testing.T) {
	log := logger.New("error", false)
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	mock := hostmock.New(
		domain.TabSnapshot{ID: 1, WindowID: 10, Active: true},
		domain.TabSnapshot{ID: 2, WindowID: 10},
	)
	trk := tracker.New(nil, log, tracker.Options{Debounce: time.Hour, Now: clk.Now})
	sweeper := sweep.New(mock, trk, rules.NewResolver(nil, log), fixedPolicy{domain.DefaultPolicy()}, log,
		sweep.WithClock(clk.Now))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sync := events.New(mock, trk, log)
	sync.Start(ctx)

	// Both tabs observed long ago.
	trk.Register(1, clk.Now())
	trk.Register(2, clk.Now())
	clk.advance(13 * time.Hour)

	// The user switches to tab 2; the event re-stamps it at the new now.
	mock.Emit(host.Event{Kind: host.EventTabActivated, TabID: 2})
	deadline := time.After(time.Second)
	for {
		if ts, ok := trk.Get(2); ok && ts.Equal(time.UnixMilli(clk.Now().UnixMilli())) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("activation event never stamped tab 2")
		case <-time.After(2 * time.Millisecond):
		}
	}

	res, err := sweeper.Run(ctx, sweep.Options{})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Closed != 0 {
		t.Errorf("sweep closed %d tabs, want 0 (tab 2 was just used)", res.Closed)
	}
}
