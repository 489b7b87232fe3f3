package rules

import (
	"fmt"
	"time"
)

// RuleAction is the per-domain override applied during sweeps.
type RuleAction string

const (
	ActionNeverClose    RuleAction = "never-close"
	ActionAlwaysClose   RuleAction = "always-close"
	ActionCustomTimeout RuleAction = "custom-timeout"
)

// Rule is a per-hostname eviction override. Domain is always stored
// normalized: no scheme, no leading "www.", no path.
type Rule struct {
	Domain  string
	Action  RuleAction
	Timeout time.Duration // only for custom-timeout
}

// Validate rejects malformed rules before they reach the store.
func (r Rule) Validate() error {
	switch r.Action {
	case ActionNeverClose, ActionAlwaysClose:
		return nil
	case ActionCustomTimeout:
		if r.Timeout <= 0 {
			return fmt.Errorf("custom-timeout rule for %q needs a positive timeout", r.Domain)
		}
		return nil
	default:
		return fmt.Errorf("unknown rule action %q", r.Action)
	}
}
