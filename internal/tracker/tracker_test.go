package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tabreaper/tabreaper/internal/logger"
)

// memBackend is an in-memory backend recording every save.
type memBackend struct {
	mu      sync.Mutex
	stored  map[int64]int64
	saves   int
	saveErr error
	loadErr error
}

func (b *memBackend) SaveTimestamps(ctx context.Context, ts map[int64]int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.stored = make(map[int64]int64, len(ts))
	for id, v := range ts {
		b.stored[id] = v
	}
	b.saves++
	return nil
}

func (b *memBackend) LoadTimestamps(ctx context.Context) (map[int64]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	out := make(map[int64]int64, len(b.stored))
	for id, v := range b.stored {
		out[id] = v
	}
	return out, nil
}

func (b *memBackend) saved() map[int64]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int64]int64, len(b.stored))
	for id, v := range b.stored {
		out[id] = v
	}
	return out
}

func newTestTracker(backend *memBackend, now func() time.Time) *Tracker {
	return New(backend, logger.New("error", false), Options{
		Debounce: time.Hour, // tests flush explicitly
		Now:      now,
	})
}

func TestTrackerRegisterAndGet(t *testing.T) {
	now := time.Now()
	trk := newTestTracker(&memBackend{}, func() time.Time { return now })

	stamp := now.Add(-time.Hour)
	trk.Register(7, stamp)

	got, ok := trk.Get(7)
	if !ok {
		t.Fatal("Get() missed a registered tab")
	}
	if got.UnixMilli() != stamp.UnixMilli() {
		t.Errorf("Get() = %v, want %v", got, stamp)
	}
}

func TestTrackerRegisterLastWriteWins(t *testing.T) {
	now := time.Now()
	trk := newTestTracker(&memBackend{}, func() time.Time { return now })

	trk.Register(1, now.Add(-2*time.Hour))
	trk.Register(1, now.Add(-time.Minute))

	got, _ := trk.Get(1)
	if got.UnixMilli() != now.Add(-time.Minute).UnixMilli() {
		t.Errorf("Get() = %v, want the later write", got)
	}
}

func TestTrackerRegisterRejectsInvalid(t *testing.T) {
	now := time.Now()
	trk := newTestTracker(&memBackend{}, func() time.Time { return now })

	trk.Register(0, now)                      // bad id
	trk.Register(-3, now)                     // bad id
	trk.Register(1, time.Time{})              // zero instant
	trk.Register(2, now.Add(10*time.Minute))  // future
	trk.Register(3, time.UnixMilli(0))        // non-positive ms

	if n := trk.Len(); n != 0 {
		t.Errorf("Len() = %d after invalid registers, want 0", n)
	}
}

func TestTrackerUnregisterIdempotent(t *testing.T) {
	trk := newTestTracker(&memBackend{}, time.Now)
	trk.RegisterNow(5)
	trk.Unregister(5)
	trk.Unregister(5)
	trk.Unregister(99)

	if _, ok := trk.Get(5); ok {
		t.Error("Get() found an unregistered tab")
	}
}

func TestTrackerFlushWritesFullMap(t *testing.T) {
	backend := &memBackend{}
	now := time.Now()
	trk := newTestTracker(backend, func() time.Time { return now })

	trk.Register(1, now.Add(-time.Hour))
	trk.Register(2, now.Add(-2*time.Hour))

	if err := trk.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	want := map[int64]int64{
		1: now.Add(-time.Hour).UnixMilli(),
		2: now.Add(-2 * time.Hour).UnixMilli(),
	}
	if diff := cmp.Diff(want, backend.saved()); diff != "" {
		t.Errorf("saved map mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackerFlushSkipsWhenClean(t *testing.T) {
	backend := &memBackend{}
	trk := newTestTracker(backend, time.Now)

	trk.RegisterNow(1)
	if err := trk.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := trk.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	if backend.saves != 1 {
		t.Errorf("backend saw %d saves, want 1 (second flush had nothing new)", backend.saves)
	}
}

func TestTrackerFlushRetriesAfterBackendError(t *testing.T) {
	backend := &memBackend{saveErr: errors.New("store down")}
	trk := newTestTracker(backend, time.Now)

	trk.RegisterNow(1)
	if err := trk.Flush(context.Background()); err == nil {
		t.Fatal("Flush() should surface the backend error")
	}

	backend.mu.Lock()
	backend.saveErr = nil
	backend.mu.Unlock()

	if err := trk.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() retry error = %v", err)
	}
	if backend.saves != 1 {
		t.Errorf("backend saw %d successful saves, want 1", backend.saves)
	}
}

func TestTrackerOldestAge(t *testing.T) {
	now := time.Now()
	trk := newTestTracker(&memBackend{}, func() time.Time { return now })

	if _, ok := trk.OldestAge(now); ok {
		t.Error("OldestAge() on an empty tracker reported an entry")
	}

	trk.Register(1, now.Add(-time.Hour))
	trk.Register(2, now.Add(-13*time.Hour))
	trk.Register(3, now.Add(-time.Minute))

	age, ok := trk.OldestAge(now)
	if !ok {
		t.Fatal("OldestAge() found nothing with three entries")
	}
	// Register truncates to milliseconds.
	if want := 13 * time.Hour; age < want-time.Second || age > want+time.Second {
		t.Errorf("OldestAge() = %v, want about %v", age, want)
	}
}

func TestTrackerDebounceCoalescesWrites(t *testing.T) {
	backend := &memBackend{}
	trk := New(backend, logger.New("error", false), Options{
		Debounce: 20 * time.Millisecond,
	})

	// A burst of mutations inside the window.
	for i := int64(1); i <= 10; i++ {
		trk.RegisterNow(i)
	}

	deadline := time.After(time.Second)
	for {
		backend.mu.Lock()
		saves, stored := backend.saves, len(backend.stored)
		backend.mu.Unlock()
		if saves > 0 {
			if saves != 1 {
				t.Errorf("burst produced %d saves, want 1", saves)
			}
			if stored != 10 {
				t.Errorf("saved %d entries, want 10", stored)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("debounced flush never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTrackerLoadSanitizes(t *testing.T) {
	now := time.Now()
	backend := &memBackend{stored: map[int64]int64{
		1:  now.Add(-time.Hour).UnixMilli(),            // valid
		2:  now.Add(10 * time.Minute).UnixMilli(),      // future
		3:  0,                                          // non-positive
		-4: now.UnixMilli(),                            // bad id
		5:  now.Add(-8 * 24 * time.Hour).UnixMilli(),   // past retention
	}}

	trk := newTestTracker(backend, func() time.Time { return now })
	trk.Load(context.Background())

	if n := trk.Len(); n != 1 {
		t.Fatalf("Len() = %d after sanitized load, want 1", n)
	}
	if _, ok := trk.Get(1); !ok {
		t.Error("the one valid record was dropped")
	}
}

func TestTrackerLoadBackendErrorStartsEmpty(t *testing.T) {
	backend := &memBackend{loadErr: errors.New("store down")}
	trk := newTestTracker(backend, time.Now)

	trk.Load(context.Background())

	if n := trk.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
	// The tracker must still accept writes after a failed load.
	trk.RegisterNow(1)
	if _, ok := trk.Get(1); !ok {
		t.Error("tracker unusable after failed load")
	}
}
