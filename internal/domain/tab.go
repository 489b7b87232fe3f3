package domain

// TabSnapshot is a point-in-time view of one browser tab as reported by the
// host. Tab ids are stable while a tab is open but are recycled by the host
// after close, so they must never be treated as unique across time.
type TabSnapshot struct {
	ID        int64
	URL       string
	Title     string
	Active    bool
	Pinned    bool
	Audible   bool
	Discarded bool
	WindowID  int64
}

// Action is the outcome of classifying one tab during a sweep.
type Action int

const (
	ActionNone Action = iota
	ActionDiscard
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionDiscard:
		return "discard"
	case ActionClose:
		return "close"
	default:
		return "none"
	}
}
