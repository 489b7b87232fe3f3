package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/tabreaper/tabreaper/internal/logger"
)

// DefaultRetention bounds how old a persisted timestamp may be before it is
// discarded on load.
const DefaultRetention = 7 * 24 * time.Hour

// DefaultDebounce is the write-coalescing window for durable writes.
const DefaultDebounce = time.Second

// Backend is the durable key-value persistence for the timestamp map. The
// full map is written on every flush; there are no partial writes.
type Backend interface {
	SaveTimestamps(ctx context.Context, ts map[int64]int64) error
	LoadTimestamps(ctx context.Context) (map[int64]int64, error)
}

// Tracker owns the tab id → last-active-instant map. The in-memory map is
// authoritative for the process lifetime; the backend is best effort.
// Mutations mark the tracker dirty and arm a debounce timer so rapid event
// bursts coalesce into one durable write.
type Tracker struct {
	mu       sync.Mutex
	stamps   map[int64]int64 // tab id -> unix milliseconds
	dirty    bool
	gen      uint64 // bumped on every mutation, guards flush races
	flushing *time.Timer

	backend   Backend
	logger    logger.Logger
	debounce  time.Duration
	retention time.Duration
	now       func() time.Time
}

// Options tune the tracker; zero values fall back to defaults.
type Options struct {
	Debounce  time.Duration
	Retention time.Duration
	Now       func() time.Time // test hook
}

func New(backend Backend, log logger.Logger, opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		stamps:    make(map[int64]int64),
		backend:   backend,
		logger:    log,
		debounce:  opts.Debounce,
		retention: opts.Retention,
		now:       opts.Now,
	}
}

// Load reads the persisted map, dropping records with invalid ids and
// timestamps that are non-positive, in the future, or past the retention
// bound. Load never fails: a backend error starts the tracker empty and logs
// a recoverable warning.
func (t *Tracker) Load(ctx context.Context) {
	if t.backend == nil {
		return
	}
	stored, err := t.backend.LoadTimestamps(ctx)
	if err != nil {
		t.logger.Warn("failed to load persisted timestamps, starting empty",
			logger.Error(err))
		return
	}

	now := t.now().UnixMilli()
	maxAge := t.retention.Milliseconds()
	clean := make(map[int64]int64, len(stored))
	dropped := 0
	for id, ts := range stored {
		if id <= 0 || ts <= 0 || ts > now || now-ts > maxAge {
			dropped++
			continue
		}
		clean[id] = ts
	}

	t.mu.Lock()
	t.stamps = clean
	t.mu.Unlock()

	if dropped > 0 {
		t.logger.Info("sanitized persisted timestamps",
			logger.Int("kept", len(clean)),
			logger.Int("dropped", dropped))
	}
}

// Register records lastActive for a tab, overwriting any prior entry
// (last-write-wins). Invalid ids and timestamps that are non-positive or in
// the future are silently ignored.
func (t *Tracker) Register(id int64, lastActive time.Time) {
	if id <= 0 {
		return
	}
	ms := lastActive.UnixMilli()
	if ms <= 0 || ms > t.now().UnixMilli() {
		return
	}

	t.mu.Lock()
	t.stamps[id] = ms
	t.markDirtyLocked()
	t.mu.Unlock()
}

// RegisterNow records the current instant for a tab.
func (t *Tracker) RegisterNow(id int64) {
	t.Register(id, t.now())
}

// Unregister removes a tab's entry. Removing an absent entry is a no-op.
func (t *Tracker) Unregister(id int64) {
	t.mu.Lock()
	if _, ok := t.stamps[id]; ok {
		delete(t.stamps, id)
		t.markDirtyLocked()
	}
	t.mu.Unlock()
}

// Get returns the recorded last-active instant for a tab.
func (t *Tracker) Get(id int64) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ms, ok := t.stamps[id]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Snapshot returns a copy of the current map.
func (t *Tracker) Snapshot() map[int64]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int64]int64, len(t.stamps))
	for id, ts := range t.stamps {
		out[id] = ts
	}
	return out
}

// OldestAge returns how long ago the stalest tracked tab was last active,
// relative to now. The second return is false when nothing is tracked.
func (t *Tracker) OldestAge(now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var min int64
	found := false
	for _, ts := range t.stamps {
		if !found || ts < min {
			min = ts
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return now.Sub(time.UnixMilli(min)), true
}

// Len returns the number of tracked tabs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stamps)
}

// markDirtyLocked arms the debounce timer if it is not already pending.
// Callers hold t.mu.
func (t *Tracker) markDirtyLocked() {
	t.dirty = true
	t.gen++
	if t.flushing != nil || t.backend == nil {
		return
	}
	t.flushing = time.AfterFunc(t.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.Flush(ctx); err != nil {
			t.logger.Warn("debounced timestamp flush failed", logger.Error(err))
		}
	})
}

// Flush writes the full map to the backend now, if anything changed since
// the last write. A backend failure keeps the dirty flag set so the next
// flush retries.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	if t.flushing != nil {
		t.flushing.Stop()
		t.flushing = nil
	}
	if !t.dirty || t.backend == nil {
		t.mu.Unlock()
		return nil
	}
	snapshot := make(map[int64]int64, len(t.stamps))
	for id, ts := range t.stamps {
		snapshot[id] = ts
	}
	gen := t.gen
	t.mu.Unlock()

	if err := t.backend.SaveTimestamps(ctx, snapshot); err != nil {
		return err
	}

	t.mu.Lock()
	// A mutation may have landed while the write was in flight; only clear
	// the dirty flag if the map is unchanged since the snapshot.
	if t.gen == gen {
		t.dirty = false
	}
	t.mu.Unlock()
	return nil
}

// Close stops any pending debounce timer and performs a final flush.
func (t *Tracker) Close(ctx context.Context) error {
	return t.Flush(ctx)
}
