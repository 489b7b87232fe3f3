// Package policy holds the effective eviction policy at runtime and keeps
// the persisted copy in step.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/logger"
)

// Store persists the policy across restarts.
type Store interface {
	SavePolicy(ctx context.Context, pol domain.Policy) error
	LoadPolicy(ctx context.Context) (domain.Policy, bool, error)
}

// Manager serializes reads and updates of the effective policy.
type Manager struct {
	mu       sync.RWMutex
	current  domain.Policy
	store    Store
	logger   logger.Logger
	onChange func()
}

func NewManager(store Store, log logger.Logger) *Manager {
	return &Manager{
		current: domain.DefaultPolicy(),
		store:   store,
		logger:  log,
	}
}

// OnChange registers a callback fired after every successful update. Set it
// before the manager is shared across goroutines.
func (m *Manager) OnChange(fn func()) {
	m.onChange = fn
}

// Load restores the persisted policy, falling back to the default when none
// exists. A store failure is not fatal; the default applies until the next
// successful update.
func (m *Manager) Load(ctx context.Context) {
	pol, found, err := m.store.LoadPolicy(ctx)
	if err != nil {
		m.logger.Warn("failed to load policy, using default", logger.Error(err))
		return
	}
	if !found {
		m.logger.Info("no persisted policy, using default")
		return
	}
	m.mu.Lock()
	m.current = pol
	m.mu.Unlock()
	m.logger.Info("policy restored",
		logger.Duration("time_limit", pol.TimeLimit),
		logger.Bool("enabled", pol.Enabled))
}

// Current returns the effective policy.
func (m *Manager) Current() domain.Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update applies a patch, persists the result, and notifies listeners.
// Validation failures leave the current policy untouched.
func (m *Manager) Update(ctx context.Context, patch domain.PolicyPatch) (domain.Policy, error) {
	m.mu.Lock()
	next, err := m.current.Apply(patch)
	if err != nil {
		m.mu.Unlock()
		return domain.Policy{}, err
	}
	if err := m.store.SavePolicy(ctx, next); err != nil {
		m.mu.Unlock()
		return domain.Policy{}, fmt.Errorf("failed to persist policy: %w", err)
	}
	m.current = next
	m.mu.Unlock()

	m.logger.Info("policy updated",
		logger.Duration("time_limit", next.TimeLimit),
		logger.Bool("enabled", next.Enabled))
	if m.onChange != nil {
		m.onChange()
	}
	return next, nil
}
