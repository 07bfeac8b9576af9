package promo

import (
	"context"
	"sync"

	"github.com/himanshu-firke/shopsphere-backend/pkg/db/models"
)

// StaticSource serves promo rules from memory. Useful for dev environments
// without a rules table and as a fixture in tests.
type StaticSource struct {
	mu    sync.RWMutex
	rules map[string]models.PromoRule
}

// NewStaticSource builds a source preloaded with the given rules, keyed by
// their normalized code.
func NewStaticSource(rules ...models.PromoRule) *StaticSource {
	s := &StaticSource{rules: make(map[string]models.PromoRule, len(rules))}
	for _, rule := range rules {
		s.rules[NormalizeCode(rule.Code)] = rule
	}
	return s
}

// RuleByCode returns the rule for a normalized code, or (nil, nil) when the
// code is unknown.
func (s *StaticSource) RuleByCode(_ context.Context, code string) (*models.PromoRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[NormalizeCode(code)]
	if !ok {
		return nil, nil
	}
	out := rule
	return &out, nil
}

// Put adds or replaces a rule.
func (s *StaticSource) Put(rule models.PromoRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[NormalizeCode(rule.Code)] = rule
}
