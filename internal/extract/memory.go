package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRuleStore 进程内规则存储，供命令行与测试使用
type MemoryRuleStore struct {
	mu     sync.Mutex
	rules  map[uint]Rule
	nextID uint
}

func NewMemoryRuleStore(rules ...Rule) *MemoryRuleStore {
	s := &MemoryRuleStore{rules: make(map[uint]Rule), nextID: 1}
	for _, r := range rules {
		s.Add(r)
	}
	return s
}

// Add 新增规则并返回分配的 id
func (s *MemoryRuleStore) Add(r Rule) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextID
	}
	if r.ID >= s.nextID {
		s.nextID = r.ID + 1
	}
	s.rules[r.ID] = r.clone()
	return r.ID
}

func (s *MemoryRuleStore) ListRules(_ context.Context) ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryRuleStore) GetRule(_ context.Context, id uint) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return Rule{}, fmt.Errorf("extraction rule %d not found", id)
	}
	return r.clone(), nil
}

func (s *MemoryRuleStore) SaveRule(_ context.Context, r Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rules[r.ID]
	if !ok {
		return fmt.Errorf("extraction rule %d not found", r.ID)
	}
	if cur.Version != r.Version {
		return ErrVersionConflict
	}
	r.Version++
	s.rules[r.ID] = r.clone()
	return nil
}
