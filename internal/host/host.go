// Package host abstracts the browser the service sweeps. Implementations
// talk to a real browser (see the cdp subpackage); the rest of the code only
// sees tab snapshots and lifecycle events.
package host

import (
	"context"

	"github.com/tabreaper/tabreaper/internal/domain"
)

// WindowNone marks a focus-change event where every window lost focus.
const WindowNone int64 = -1

// Window is a host window (or workspace; they enumerate identically).
type Window struct {
	ID      int64
	Focused bool
}

// EventKind enumerates host lifecycle notifications.
type EventKind int

const (
	EventTabCreated EventKind = iota
	EventTabActivated
	EventTabUpdated // content finished loading or URL changed
	EventTabRemoved
	EventWindowFocused
)

func (k EventKind) String() string {
	switch k {
	case EventTabCreated:
		return "tab_created"
	case EventTabActivated:
		return "tab_activated"
	case EventTabUpdated:
		return "tab_updated"
	case EventTabRemoved:
		return "tab_removed"
	case EventWindowFocused:
		return "window_focused"
	default:
		return "unknown"
	}
}

// Event is one host lifecycle notification. Delivery is at-most-once per
// real event with no replay across restarts.
type Event struct {
	Kind     EventKind
	TabID    int64
	WindowID int64
	URL      string
}

// Host is the integration surface against the browser. Every call is a
// suspension point: the live tab set may change between any two calls, so
// callers tolerate tabs that vanished in between.
type Host interface {
	// Tabs enumerates every tab across all windows. A transient failure or
	// an empty result must never be read as "no tabs exist" - use an
	// Enumerator for the fallback discipline.
	Tabs(ctx context.Context) ([]domain.TabSnapshot, error)

	// Windows lists all open windows.
	Windows(ctx context.Context) ([]Window, error)

	// WindowTabs enumerates the tabs of a single window.
	WindowTabs(ctx context.Context, windowID int64) ([]domain.TabSnapshot, error)

	// CloseTabs removes tabs as one batch. On error the caller falls back
	// to CloseTab one at a time.
	CloseTabs(ctx context.Context, ids []int64) error

	// CloseTab removes a single tab. Closing an already-gone tab fails;
	// callers treat that as routine.
	CloseTab(ctx context.Context, id int64) error

	// DiscardTab unloads a tab's content while keeping it in the tab
	// strip. Discarding an already-discarded tab is a safe no-op.
	DiscardTab(ctx context.Context, id int64) error

	// Events streams lifecycle notifications until the host is closed.
	Events() <-chan Event

	Close() error
}
