package redis

import (
	"github.com/redis/go-redis/v9"
)

// Store handles Redis persistence for tab timestamps, domain rules, and the
// runtime policy. Redis plays the role of the host's durable key-value
// storage: best effort, no transactions, tolerant of a brief staleness
// window between writers.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store.
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}
