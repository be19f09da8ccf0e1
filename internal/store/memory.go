package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rafaeljc/herald/internal/dispatch"
	"github.com/rafaeljc/herald/internal/ruleengine"
)

var (
	_ ruleengine.RuleSource   = (*MemoryStore)(nil)
	_ dispatch.TemplateSource = (*MemoryStore)(nil)
)

// MemoryStore holds rules and templates in process memory. Rules are compiled
// when added. It is safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	rules     map[string][]ruleengine.Rule
	templates map[string]dispatch.Template
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:     make(map[string][]ruleengine.Rule),
		templates: make(map[string]dispatch.Template),
	}
}

// AddRule compiles and stores a rule. A rule that fails to compile is still
// stored (the engine skips it) and the compile error is returned.
func (s *MemoryStore) AddRule(rule ruleengine.Rule) error {
	if rule.RecipientID == "" {
		return fmt.Errorf("rule %s has no recipient", rule.ID)
	}
	compileErr := ruleengine.CompileRule(&rule)

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.rules[rule.RecipientID], rule)
	slices.SortStableFunc(list, func(a, b ruleengine.Rule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	s.rules[rule.RecipientID] = list

	return compileErr
}

// AddTemplate stores or replaces a template.
func (s *MemoryStore) AddTemplate(t dispatch.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Name] = t
}

// ListActiveRulesForRecipient returns the active rules by descending priority.
// Rules of equal priority keep insertion order.
func (s *MemoryStore) ListActiveRulesForRecipient(_ context.Context, recipientID string) ([]ruleengine.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ruleengine.Rule, 0, len(s.rules[recipientID]))
	for _, r := range s.rules[recipientID] {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetTemplate returns a copy of the named template.
func (s *MemoryStore) GetTemplate(_ context.Context, name string) (*dispatch.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", dispatch.ErrTemplateNotFound, name)
	}
	return &t, nil
}
