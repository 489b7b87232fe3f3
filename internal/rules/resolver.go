package rules

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/logger"
)

var (
	// ErrInvalidDomain is returned when an input cannot be reduced to a
	// plain hostname.
	ErrInvalidDomain = errors.New("invalid domain format")
	// ErrRuleExists is returned when a rule for the normalized domain is
	// already present. Callers wanting replace semantics remove first.
	ErrRuleExists = errors.New("rule already exists for domain")
)

// Store is the persistence backend for domain rules.
type Store interface {
	SaveRule(ctx context.Context, r Rule) error
	DeleteRule(ctx context.Context, domain string) error
	LoadRules(ctx context.Context) ([]Rule, error)
}

// Resolver holds the domain rule set in memory and matches tab URLs against
// it. At most one rule exists per normalized domain.
type Resolver struct {
	mu     sync.RWMutex
	rules  map[string]Rule
	store  Store
	logger logger.Logger
}

func NewResolver(store Store, log logger.Logger) *Resolver {
	return &Resolver{
		rules:  make(map[string]Rule),
		store:  store,
		logger: log,
	}
}

// Load replaces the in-memory rule set from the store. A store failure is
// recoverable: the resolver keeps whatever it had and sweeps proceed with
// the global policy alone.
func (r *Resolver) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	loaded, err := r.store.LoadRules(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = make(map[string]Rule, len(loaded))
	for _, rule := range loaded {
		if err := rule.Validate(); err != nil {
			r.logger.Warn("dropping malformed stored rule",
				logger.String("domain", rule.Domain),
				logger.Error(err))
			continue
		}
		r.rules[rule.Domain] = rule
	}
	return nil
}

// Seed adds rules that do not collide with an already-known domain. Used for
// the optional rules file at startup; stored rules win over seeded ones.
func (r *Resolver) Seed(ctx context.Context, seed []Rule) {
	for _, rule := range seed {
		if err := r.Add(ctx, rule.Domain, rule.Action, rule.Timeout); err != nil {
			if errors.Is(err, ErrRuleExists) {
				continue
			}
			r.logger.Warn("skipping seed rule",
				logger.String("domain", rule.Domain),
				logger.Error(err))
		}
	}
}

// Normalize reduces a full URL or bare domain to its canonical form:
// hostname only, lowercased, leading "www." stripped.
func Normalize(domainOrURL string) (string, error) {
	s := strings.TrimSpace(strings.ToLower(domainOrURL))
	if s == "" {
		return "", ErrInvalidDomain
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Hostname() == "" {
			return "", ErrInvalidDomain
		}
		s = u.Hostname()
	}

	if strings.ContainsAny(s, "/ \t?#@:") {
		return "", ErrInvalidDomain
	}

	s = strings.TrimPrefix(s, "www.")
	if s == "" || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return "", ErrInvalidDomain
	}
	return s, nil
}

// Add normalizes and persists a new rule. Duplicate domains are rejected,
// not replaced.
func (r *Resolver) Add(ctx context.Context, domain string, action RuleAction, timeout time.Duration) error {
	normalized, err := Normalize(domain)
	if err != nil {
		return err
	}

	rule := Rule{Domain: normalized, Action: action}
	if action == ActionCustomTimeout {
		rule.Timeout = timeout
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[normalized]; exists {
		return ErrRuleExists
	}
	r.rules[normalized] = rule

	if r.store != nil {
		if err := r.store.SaveRule(ctx, rule); err != nil {
			r.logger.Warn("failed to persist rule",
				logger.String("domain", normalized),
				logger.Error(err))
		}
	}
	return nil
}

// Remove deletes the rule for the exact normalized domain. Reports whether a
// rule was actually removed.
func (r *Resolver) Remove(ctx context.Context, domain string) (bool, error) {
	normalized, err := Normalize(domain)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[normalized]; !exists {
		return false, nil
	}
	delete(r.rules, normalized)

	if r.store != nil {
		if err := r.store.DeleteRule(ctx, normalized); err != nil {
			r.logger.Warn("failed to delete persisted rule",
				logger.String("domain", normalized),
				logger.Error(err))
		}
	}
	return true, nil
}

// All returns a copy of the current rule set.
func (r *Resolver) All() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	return out
}

// Resolve matches a tab URL against the rule set: exact hostname first, then
// the www-stripped hostname, then the longest subdomain suffix, so a rule on
// app.example.com beats one on example.com for a.app.example.com. An
// unparsable or empty URL matches nothing.
func (r *Resolver) Resolve(rawURL string) (Rule, bool) {
	if rawURL == "" {
		return Rule{}, false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Rule{}, false
	}
	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return Rule{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if rule, ok := r.rules[hostname]; ok {
		return rule, true
	}
	if stripped := strings.TrimPrefix(hostname, "www."); stripped != hostname {
		if rule, ok := r.rules[stripped]; ok {
			return rule, true
		}
	}
	var best Rule
	bestLen := -1
	for dom, rule := range r.rules {
		if strings.HasSuffix(hostname, "."+dom) && len(dom) > bestLen {
			best, bestLen = rule, len(dom)
		}
	}
	if bestLen >= 0 {
		return best, true
	}
	return Rule{}, false
}

// Decide converts the matching rule (if any) into the decision consumed by
// the eviction policy.
func (r *Resolver) Decide(tab domain.TabSnapshot) domain.Decision {
	rule, ok := r.Resolve(tab.URL)
	if !ok {
		return domain.DefaultDecision()
	}

	switch rule.Action {
	case ActionNeverClose:
		return domain.Decision{ShouldProcess: false}
	case ActionAlwaysClose:
		return domain.Decision{ShouldProcess: true, Immediate: true}
	case ActionCustomTimeout:
		return domain.Decision{ShouldProcess: true, Timeout: rule.Timeout, HasTimeout: true}
	default:
		return domain.DefaultDecision()
	}
}
