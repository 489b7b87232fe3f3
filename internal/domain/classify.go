package domain

import "time"

// Decision is the domain-rule verdict for one tab, resolved before the
// eviction policy runs.
type Decision struct {
	ShouldProcess bool          // false: a never-close rule protects the tab unconditionally
	Immediate     bool          // true: an always-close rule makes the tab eligible at any age
	Timeout       time.Duration // custom idle limit; only meaningful when HasTimeout
	HasTimeout    bool
}

// DefaultDecision falls through to the global policy.
func DefaultDecision() Decision {
	return Decision{ShouldProcess: true}
}

// Verdict is the result of classifying one tab.
type Verdict struct {
	Action Action
	// Register is set when the tab had no recorded timestamp; the caller
	// must record "now" for it so the tab is not evicted the instant it is
	// first observed.
	Register bool
}

// Classify decides what to do with a single tab. lastActive is zero when the
// tab has no recorded timestamp. The rule order is deliberate: domain
// overrides protect even active tabs, active tabs are protected regardless of
// age, and pinned/audible exclusions are only consulted once the tab is
// confirmed old enough.
func Classify(tab TabSnapshot, lastActive time.Time, now time.Time, pol Policy, dec Decision) Verdict {
	if !dec.ShouldProcess {
		return Verdict{Action: ActionNone}
	}

	if tab.Active {
		return Verdict{Action: ActionNone}
	}

	if lastActive.IsZero() {
		// Unknown age is treated as fresh, not infinitely stale.
		return Verdict{Action: ActionNone, Register: true}
	}

	if !dec.Immediate {
		limit := pol.TimeLimit
		if dec.HasTimeout {
			limit = dec.Timeout
		}
		// The boundary is exclusive: a tab aged exactly limit is not yet
		// eligible.
		if now.Sub(lastActive) <= limit {
			return Verdict{Action: ActionNone}
		}
	}

	if tab.Pinned {
		switch {
		case pol.ExcludePinned:
			return Verdict{Action: ActionNone}
		case pol.DiscardPinned:
			return Verdict{Action: ActionDiscard}
		}
	}

	if tab.Audible && pol.ExcludeAudible {
		return Verdict{Action: ActionNone}
	}

	return Verdict{Action: ActionClose}
}
