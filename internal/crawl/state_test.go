package crawl

import (
	"sync"
	"testing"
)

func TestReserveItemHonorsBudget(t *testing.T) {
	s := NewState(0, 3)

	for i := 0; i < 3; i++ {
		if !s.ReserveItem() {
			t.Fatalf("reservation %d denied under budget", i+1)
		}
	}
	if s.ReserveItem() {
		t.Fatal("reservation granted past budget")
	}
	if !s.ItemBudgetReached() {
		t.Fatal("ItemBudgetReached = false after budget spent")
	}

	_, items := s.Counts()
	if items != 3 {
		t.Fatalf("items = %d, want 3", items)
	}
}

func TestReservePageHonorsBudget(t *testing.T) {
	s := NewState(2, 0)

	if !s.ReservePage() || !s.ReservePage() {
		t.Fatal("reservation denied under budget")
	}
	if s.ReservePage() {
		t.Fatal("reservation granted past budget")
	}
	if !s.PageBudgetReached() {
		t.Fatal("PageBudgetReached = false after budget spent")
	}
}

func TestZeroBudgetIsUnlimited(t *testing.T) {
	s := NewState(0, 0)

	for i := 0; i < 1000; i++ {
		if !s.ReservePage() || !s.ReserveItem() {
			t.Fatalf("reservation %d denied with zero budget", i)
		}
	}
	if s.PageBudgetReached() || s.ItemBudgetReached() {
		t.Fatal("budget reached with zero budget")
	}
}

func TestMarkSeenFirstOccurrenceOnly(t *testing.T) {
	s := NewState(0, 0)

	order := []string{"B0AAAAAAA1", "B0BBBBBBB2", "B0AAAAAAA1", "B0CCCCCCC3"}
	var kept []string
	for _, id := range order {
		if s.MarkSeen(id) {
			kept = append(kept, id)
		}
	}

	want := []string{"B0AAAAAAA1", "B0BBBBBBB2", "B0CCCCCCC3"}
	if len(kept) != len(want) {
		t.Fatalf("kept %d ids, want %d", len(kept), len(want))
	}
	for i := range want {
		if kept[i] != want[i] {
			t.Errorf("kept[%d] = %q, want %q", i, kept[i], want[i])
		}
	}
	if s.SeenCount() != 3 {
		t.Errorf("SeenCount = %d, want 3", s.SeenCount())
	}
}

func TestPreloadSeen(t *testing.T) {
	s := NewState(0, 0)
	s.PreloadSeen([]string{"B0AAAAAAA1", "B0BBBBBBB2"})

	if s.MarkSeen("B0AAAAAAA1") {
		t.Error("preloaded id marked as first occurrence")
	}
	if !s.MarkSeen("B0CCCCCCC3") {
		t.Error("fresh id not marked as first occurrence")
	}
}

func TestStateConcurrentReservations(t *testing.T) {
	const budget = 100
	s := NewState(0, budget)

	var wg sync.WaitGroup
	granted := make(chan struct{}, budget*4)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < budget; j++ {
				if s.ReserveItem() {
					granted <- struct{}{}
				}
			}
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	if count != budget {
		t.Fatalf("granted %d reservations, want exactly %d", count, budget)
	}
}
