package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/herald/internal/observability"
	"github.com/rafaeljc/herald/internal/ruleengine"
)

// RuleCache acts as the L1 caching layer for compiled recipient rules using a
// high-performance, contention-free algorithm (S3-FIFO) provided by 'otter'.
//
// Cached slices are shared between readers and must be treated as read-only.
type RuleCache struct {
	store otter.Cache[string, []ruleengine.Rule]
}

// NewRuleCache initializes the in-memory cache with strict limits.
// capacity: Max number of recipients (Hard Cap to prevent OOM).
// ttl: Time-To-Live for entries (bounds how stale a rule change can be).
func NewRuleCache(capacity int, ttl time.Duration) (*RuleCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("rule cache capacity must be positive, got %d", capacity)
	}

	c, err := otter.MustBuilder[string, []ruleengine.Rule](capacity).
		CollectStats().
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build rule cache: %w", err)
	}

	return &RuleCache{store: c}, nil
}

// Get returns the cached rules of a recipient.
// An empty rule list is a valid cached value and reports found.
func (c *RuleCache) Get(recipientID string) ([]ruleengine.Rule, bool) {
	rules, found := c.store.Get(recipientID)
	if found {
		observability.RulesCacheHits.Inc()
	} else {
		observability.RulesCacheMisses.Inc()
	}
	return rules, found
}

// Set stores the rules of a recipient. The configured TTL applies automatically.
func (c *RuleCache) Set(recipientID string, rules []ruleengine.Rule) {
	if rules == nil {
		rules = []ruleengine.Rule{}
	}
	c.store.Set(recipientID, rules)
}

// Invalidate drops the cached rules of a recipient.
func (c *RuleCache) Invalidate(recipientID string) {
	c.store.Delete(recipientID)
}

// Len reports the number of recipients currently cached.
func (c *RuleCache) Len() int {
	return c.store.Size()
}

// RunMetricsCollector publishes cache usage and evictions until ctx is cancelled.
func (c *RuleCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.RulesCacheUsage.Set(float64(c.store.Size()))

			evicted := c.store.Stats().EvictedCount()
			if delta := evicted - lastEvicted; delta > 0 {
				observability.RulesCacheEvictions.Add(float64(delta))
			}
			lastEvicted = evicted
		}
	}
}

// Close gracefully shuts down the cache and its background cleanup goroutines.
func (c *RuleCache) Close() {
	c.store.Close()
}
