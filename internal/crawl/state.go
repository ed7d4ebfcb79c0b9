package crawl

import (
	"sync"
)

// State is the single authority over crawl-wide mutable facts: the set
// of emitted record IDs and the page/item budget counters. Everything
// is guarded by one mutex so budget checks and increments are a single
// atomic step; no caller may check-then-act around it.
type State struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	pages    int
	items    int
	maxPages int
	maxItems int
}

// NewState creates a State. A budget of 0 means unlimited.
func NewState(maxPages, maxItems int) *State {
	return &State{
		seen:     make(map[string]struct{}),
		maxPages: maxPages,
		maxItems: maxItems,
	}
}

// ReservePage counts one listing page against the page budget. Returns
// false when the budget is already spent.
func (s *State) ReservePage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxPages > 0 && s.pages >= s.maxPages {
		return false
	}
	s.pages++
	return true
}

// ReserveItem counts one record against the item budget. Returns false
// when the budget is already spent.
func (s *State) ReserveItem() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxItems > 0 && s.items >= s.maxItems {
		return false
	}
	s.items++
	return true
}

// ItemBudgetReached reports whether the item budget is spent, without
// reserving.
func (s *State) ItemBudgetReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxItems > 0 && s.items >= s.maxItems
}

// PageBudgetReached reports whether the page budget is spent, without
// reserving.
func (s *State) PageBudgetReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPages > 0 && s.pages >= s.maxPages
}

// MarkSeen records an ID, returning true only for the first occurrence.
func (s *State) MarkSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// PreloadSeen seeds the seen set, e.g. from a previous run's store.
func (s *State) PreloadSeen(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.seen[id] = struct{}{}
	}
}

// Counts returns the current page and item counters.
func (s *State) Counts() (pages, items int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages, s.items
}

// SeenCount returns the number of distinct IDs recorded.
func (s *State) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
