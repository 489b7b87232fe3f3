package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tabreaper/tabreaper/internal/rules"
)

// ruleDoc is the stored shape of one domain rule; timeouts are persisted in
// milliseconds.
type ruleDoc struct {
	Domain    string `json:"domain"`
	Action    string `json:"action"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// SaveRule stores one rule in the rules hash keyed by normalized domain.
func (s *Store) SaveRule(ctx context.Context, r rules.Rule) error {
	data, err := json.Marshal(ruleDoc{
		Domain:    r.Domain,
		Action:    string(r.Action),
		TimeoutMS: r.Timeout.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rule %s: %w", r.Domain, err)
	}
	if err := s.client.HSet(ctx, KeyRules, r.Domain, data).Err(); err != nil {
		return fmt.Errorf("failed to save rule %s: %w", r.Domain, err)
	}
	return nil
}

// DeleteRule removes a rule from the hash. Deleting an absent rule is a
// no-op.
func (s *Store) DeleteRule(ctx context.Context, domain string) error {
	if err := s.client.HDel(ctx, KeyRules, domain).Err(); err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", domain, err)
	}
	return nil
}

// LoadRules retrieves all persisted rules. Entries that fail to decode are
// skipped rather than failing the whole load.
func (s *Store) LoadRules(ctx context.Context) ([]rules.Rule, error) {
	entries, err := s.client.HGetAll(ctx, KeyRules).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	out := make([]rules.Rule, 0, len(entries))
	for _, raw := range entries {
		var doc ruleDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		out = append(out, rules.Rule{
			Domain:  doc.Domain,
			Action:  rules.RuleAction(doc.Action),
			Timeout: time.Duration(doc.TimeoutMS) * time.Millisecond,
		})
	}
	return out, nil
}
