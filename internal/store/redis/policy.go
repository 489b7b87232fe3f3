package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabreaper/tabreaper/internal/domain"
)

// policyDoc is the stored shape of the runtime policy; durations are
// persisted in milliseconds.
type policyDoc struct {
	TimeLimitMS    int64 `json:"time_limit_ms"`
	Enabled        bool  `json:"enabled"`
	ExcludePinned  bool  `json:"exclude_pinned"`
	ExcludeAudible bool  `json:"exclude_audible"`
	DiscardPinned  bool  `json:"discard_pinned"`
	CloseOnStart   bool  `json:"close_on_start"`
}

// SavePolicy persists the runtime policy.
func (s *Store) SavePolicy(ctx context.Context, pol domain.Policy) error {
	data, err := json.Marshal(policyDoc{
		TimeLimitMS:    pol.TimeLimit.Milliseconds(),
		Enabled:        pol.Enabled,
		ExcludePinned:  pol.ExcludePinned,
		ExcludeAudible: pol.ExcludeAudible,
		DiscardPinned:  pol.DiscardPinned,
		CloseOnStart:   pol.CloseOnStart,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}
	if err := s.client.Set(ctx, KeyPolicy, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// LoadPolicy reads the persisted policy. The second return value reports
// whether a policy was actually stored; callers fall back to defaults when
// it is false. Stored values are sanitized field by field before use.
func (s *Store) LoadPolicy(ctx context.Context) (domain.Policy, bool, error) {
	data, err := s.client.Get(ctx, KeyPolicy).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Policy{}, false, nil
		}
		return domain.Policy{}, false, fmt.Errorf("failed to load policy: %w", err)
	}

	var doc policyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Policy{}, false, fmt.Errorf("failed to unmarshal policy: %w", err)
	}

	pol := domain.Policy{
		TimeLimit:      time.Duration(doc.TimeLimitMS) * time.Millisecond,
		Enabled:        doc.Enabled,
		ExcludePinned:  doc.ExcludePinned,
		ExcludeAudible: doc.ExcludeAudible,
		DiscardPinned:  doc.DiscardPinned,
		CloseOnStart:   doc.CloseOnStart,
	}
	return pol.Sanitize(), true, nil
}
