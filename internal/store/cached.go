package store

import (
	"context"

	"github.com/rafaeljc/herald/internal/cache"
	"github.com/rafaeljc/herald/internal/ruleengine"
)

var _ ruleengine.RuleSource = (*CachedRuleSource)(nil)

// CachedRuleSource serves rules from the L1 cache and falls back to the
// underlying source on a miss. Rule changes become visible after the cache TTL.
type CachedRuleSource struct {
	source ruleengine.RuleSource
	cache  *cache.RuleCache
}

// NewCachedRuleSource wraps source with c.
func NewCachedRuleSource(source ruleengine.RuleSource, c *cache.RuleCache) *CachedRuleSource {
	if source == nil || c == nil {
		panic("store: cached rule source requires a source and a cache")
	}
	return &CachedRuleSource{source: source, cache: c}
}

// ListActiveRulesForRecipient returns cached rules when present. Load errors are not cached.
func (s *CachedRuleSource) ListActiveRulesForRecipient(ctx context.Context, recipientID string) ([]ruleengine.Rule, error) {
	if rules, ok := s.cache.Get(recipientID); ok {
		return rules, nil
	}

	rules, err := s.source.ListActiveRulesForRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(recipientID, rules)
	return rules, nil
}

// Invalidate drops the cached rules of a recipient so the next read reloads them.
func (s *CachedRuleSource) Invalidate(recipientID string) {
	s.cache.Invalidate(recipientID)
}
