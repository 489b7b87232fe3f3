package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// SaveTimestamps writes the full timestamp map as a single JSON document.
func (s *Store) SaveTimestamps(ctx context.Context, ts map[int64]int64) error {
	doc := make(map[string]int64, len(ts))
	for id, stamp := range ts {
		doc[strconv.FormatInt(id, 10)] = stamp
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal timestamps: %w", err)
	}
	if err := s.client.Set(ctx, KeyTimestamps, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save timestamps: %w", err)
	}
	return nil
}

// LoadTimestamps reads the persisted timestamp map. A missing key yields an
// empty map, not an error. Entries with unparsable ids are skipped; range
// validation belongs to the caller.
func (s *Store) LoadTimestamps(ctx context.Context) (map[int64]int64, error) {
	data, err := s.client.Get(ctx, KeyTimestamps).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[int64]int64{}, nil
		}
		return nil, fmt.Errorf("failed to load timestamps: %w", err)
	}

	var doc map[string]int64
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timestamps: %w", err)
	}

	out := make(map[int64]int64, len(doc))
	for key, stamp := range doc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		out[id] = stamp
	}
	return out, nil
}
