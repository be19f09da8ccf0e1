package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/herald/internal/observability"
)

// entry holds one recipient's counters. The mutex serializes rollover and
// increment for that recipient only.
type entry struct {
	mu    sync.Mutex
	stats Stats
}

// MemoryTracker keeps recipient stats in a bounded in-process cache (S3-FIFO via otter).
//
// Capacity caps the number of recipients held; TTL drops recipients that have
// not been updated for that long. An evicted recipient starts again from zero,
// so TTL should be longer than one day.
type MemoryTracker struct {
	store otter.Cache[string, *entry]
	opts  options
}

var _ Tracker = (*MemoryTracker)(nil)

// NewMemoryTracker initializes the tracker with strict limits.
// capacity: Max number of recipients (Hard Cap to prevent OOM).
// ttl: Idle time after which a recipient is forgotten.
func NewMemoryTracker(capacity int, ttl time.Duration, opts ...Option) (*MemoryTracker, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("stats capacity must be positive, got %d", capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("stats ttl must be positive, got %s", ttl)
	}

	cache, err := otter.MustBuilder[string, *entry](capacity).
		CollectStats().
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build stats cache: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &MemoryTracker{store: cache, opts: o}, nil
}

// GetOrCreate returns the recipient's stats as of today, allocating an empty
// record on first access.
func (t *MemoryTracker) GetOrCreate(_ context.Context, recipientID string) (Stats, error) {
	if recipientID == "" {
		return Stats{}, ErrRecipientRequired
	}

	today := StartOfDay(t.opts.now(), t.opts.loc)
	e := t.entryFor(recipientID, today)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.asOf(today), nil
}

// Update records one send for the recipient.
func (t *MemoryTracker) Update(_ context.Context, recipientID string) error {
	if recipientID == "" {
		return ErrRecipientRequired
	}

	now := t.opts.now()
	today := StartOfDay(now, t.opts.loc)

	// An entry can expire between lookup and refresh while another goroutine
	// installs a fresh one. The increment is then retried on the live entry.
	for attempt := 1; ; attempt++ {
		e := t.entryFor(recipientID, today)

		e.mu.Lock()
		e.stats.record(now, today)
		e.mu.Unlock()

		if t.keep(recipientID, e) || attempt == maxUpdateAttempts {
			break
		}
	}
	observability.StatsUpdates.WithLabelValues("memory", "success").Inc()

	return nil
}

const maxUpdateAttempts = 3

// keep refreshes the TTL of e if it is still the recipient's entry, putting it
// back if it expired meanwhile. It reports false when a different entry has
// taken the slot, so an increment recorded on e never overwrites that entry.
func (t *MemoryTracker) keep(recipientID string, e *entry) bool {
	cur, ok := t.store.Get(recipientID)
	if !ok {
		return t.store.SetIfAbsent(recipientID, e)
	}
	if cur != e {
		return false
	}
	t.store.Set(recipientID, e)
	return true
}

// entryFor returns the shared entry for the recipient, creating it if needed.
// Concurrent first accesses agree on a single entry.
func (t *MemoryTracker) entryFor(recipientID string, today time.Time) *entry {
	if e, ok := t.store.Get(recipientID); ok {
		return e
	}

	fresh := &entry{stats: Stats{LastResetDate: today}}
	if t.store.SetIfAbsent(recipientID, fresh) {
		return fresh
	}

	// Lost the race: use the winner's entry.
	if e, ok := t.store.Get(recipientID); ok {
		return e
	}

	// Rejected by the cache and not present; work on an untracked entry.
	return fresh
}

// Len reports the number of recipients currently held.
func (t *MemoryTracker) Len() int {
	return t.store.Size()
}

// RunMetricsCollector publishes cache usage and evictions until ctx is cancelled.
func (t *MemoryTracker) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.StatsRecipients.Set(float64(t.store.Size()))

			evicted := t.store.Stats().EvictedCount()
			if delta := evicted - lastEvicted; delta > 0 {
				observability.StatsEvictions.Add(float64(delta))
			}
			lastEvicted = evicted
		}
	}
}

// Close stops the cache background goroutines.
func (t *MemoryTracker) Close() {
	t.store.Close()
}
