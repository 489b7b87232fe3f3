// Package hostmock provides a scriptable in-memory host for tests: failure
// injection for the enumeration fallback paths and per-tab close errors for
// the partial-failure paths.
package hostmock

import (
	"context"
	"errors"
	"sync"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/host"
)

var ErrGone = errors.New("tab no longer exists")

type Mock struct {
	mu   sync.Mutex
	tabs map[int64]domain.TabSnapshot

	// Failure injection.
	FailFlatQueries int  // fail this many Tabs() calls before succeeding
	FailWindows     bool // Windows() always fails
	FailBatchClose  bool // CloseTabs() always fails, forcing the per-tab path
	FailCloseFor    map[int64]error
	FailDiscardFor  map[int64]error

	// Recorded host mutations, in call order.
	ClosedIDs    []int64
	DiscardedIDs []int64

	events chan host.Event
	closed bool
}

func New(tabs ...domain.TabSnapshot) *Mock {
	m := &Mock{
		tabs:           make(map[int64]domain.TabSnapshot, len(tabs)),
		FailCloseFor:   make(map[int64]error),
		FailDiscardFor: make(map[int64]error),
		events:         make(chan host.Event, 64),
	}
	for _, t := range tabs {
		m.tabs[t.ID] = t
	}
	return m
}

// SetTab adds or replaces a tab.
func (m *Mock) SetTab(t domain.TabSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs[t.ID] = t
}

// RemoveTab deletes a tab without recording a close.
func (m *Mock) RemoveTab(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tabs, id)
}

// Closed returns a copy of the recorded close order.
func (m *Mock) Closed() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ClosedIDs...)
}

// Discarded returns a copy of the recorded discard order.
func (m *Mock) Discarded() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.DiscardedIDs...)
}

// Emit delivers a host event to subscribers.
func (m *Mock) Emit(ev host.Event) {
	m.events <- ev
}

func (m *Mock) Tabs(ctx context.Context) ([]domain.TabSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFlatQueries > 0 {
		m.FailFlatQueries--
		return nil, errors.New("flat query failed")
	}
	out := make([]domain.TabSnapshot, 0, len(m.tabs))
	for _, t := range m.tabs {
		out = append(out, t)
	}
	return out, nil
}

func (m *Mock) Windows(ctx context.Context) ([]host.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWindows {
		return nil, errors.New("window listing failed")
	}
	seen := make(map[int64]bool)
	var wins []host.Window
	for _, t := range m.tabs {
		if !seen[t.WindowID] {
			seen[t.WindowID] = true
			wins = append(wins, host.Window{ID: t.WindowID})
		}
	}
	return wins, nil
}

func (m *Mock) WindowTabs(ctx context.Context, windowID int64) ([]domain.TabSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TabSnapshot
	for _, t := range m.tabs {
		if t.WindowID == windowID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Mock) CloseTabs(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	if m.FailBatchClose {
		m.mu.Unlock()
		return errors.New("batch close failed")
	}
	m.mu.Unlock()
	for _, id := range ids {
		if err := m.CloseTab(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mock) CloseTab(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailCloseFor[id]; ok {
		return err
	}
	if _, ok := m.tabs[id]; !ok {
		return ErrGone
	}
	delete(m.tabs, id)
	m.ClosedIDs = append(m.ClosedIDs, id)
	return nil
}

func (m *Mock) DiscardTab(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailDiscardFor[id]; ok {
		return err
	}
	t, ok := m.tabs[id]
	if !ok {
		return ErrGone
	}
	t.Discarded = true
	m.tabs[id] = t
	m.DiscardedIDs = append(m.DiscardedIDs, id)
	return nil
}

func (m *Mock) Events() <-chan host.Event {
	return m.events
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}
