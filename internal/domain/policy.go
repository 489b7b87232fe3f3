package domain

import (
	"fmt"
	"time"
)

// Bounds for the configurable idle limit. Values outside this range are
// rejected, never clamped.
const (
	MinTimeLimit = 2 * time.Minute
	MaxTimeLimit = 48 * time.Hour
)

// Policy is the runtime tab-eviction configuration. It is loaded once at
// startup from the store merged over defaults and mutated only through
// Apply, so it is never partially invalid.
type Policy struct {
	TimeLimit      time.Duration
	Enabled        bool
	ExcludePinned  bool
	ExcludeAudible bool
	DiscardPinned  bool
	CloseOnStart   bool
}

// DefaultPolicy returns the out-of-the-box configuration: 12 hours idle
// limit, pinned tabs discarded rather than closed, audio tabs protected.
func DefaultPolicy() Policy {
	return Policy{
		TimeLimit:      12 * time.Hour,
		Enabled:        true,
		ExcludePinned:  false,
		ExcludeAudible: true,
		DiscardPinned:  true,
		CloseOnStart:   true,
	}
}

// PolicyPatch is a partial policy update. Nil fields are left untouched.
type PolicyPatch struct {
	TimeLimit      *time.Duration
	Enabled        *bool
	ExcludePinned  *bool
	ExcludeAudible *bool
	DiscardPinned  *bool
	CloseOnStart   *bool
}

// ValidationError reports a rejected policy update field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks a patch against the policy bounds.
func (p PolicyPatch) Validate() error {
	if p.TimeLimit != nil {
		if *p.TimeLimit < MinTimeLimit || *p.TimeLimit > MaxTimeLimit {
			return &ValidationError{
				Field:  "time_limit",
				Reason: fmt.Sprintf("must be between %s and %s", MinTimeLimit, MaxTimeLimit),
			}
		}
	}
	return nil
}

// Apply returns a copy of the policy with the validated patch merged in.
func (pol Policy) Apply(p PolicyPatch) (Policy, error) {
	if err := p.Validate(); err != nil {
		return pol, err
	}
	out := pol
	if p.TimeLimit != nil {
		out.TimeLimit = *p.TimeLimit
	}
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	if p.ExcludePinned != nil {
		out.ExcludePinned = *p.ExcludePinned
	}
	if p.ExcludeAudible != nil {
		out.ExcludeAudible = *p.ExcludeAudible
	}
	if p.DiscardPinned != nil {
		out.DiscardPinned = *p.DiscardPinned
	}
	if p.CloseOnStart != nil {
		out.CloseOnStart = *p.CloseOnStart
	}
	return out, nil
}

// Sanitize drops out-of-range values loaded from the store, falling back to
// the defaults field by field. Persisted state is never trusted blindly.
func (pol Policy) Sanitize() Policy {
	def := DefaultPolicy()
	if pol.TimeLimit < MinTimeLimit || pol.TimeLimit > MaxTimeLimit {
		pol.TimeLimit = def.TimeLimit
	}
	return pol
}
