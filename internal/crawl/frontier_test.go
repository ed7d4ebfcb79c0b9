package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/IshaanNene/martstalk/internal/types"
)

func TestFrontierDetailsBeforeListings(t *testing.T) {
	f := NewFrontier()

	f.Push(types.NewListingRequest("https://example.com/s?k=x&page=2", "x", 2))
	f.Push(types.NewDetailRequest("https://example.com/dp/B0AAAAAAA1", "x", "B0AAAAAAA1", nil))
	f.Push(types.NewListingRequest("https://example.com/s?k=x&page=3", "x", 3))
	f.Push(types.NewDetailRequest("https://example.com/dp/B0BBBBBBB2", "x", "B0BBBBBBB2", nil))

	var kinds []types.RequestKind
	for f.Len() > 0 {
		kinds = append(kinds, f.TryPop().Kind)
	}

	want := []types.RequestKind{types.KindDetail, types.KindDetail, types.KindListing, types.KindListing}
	if len(kinds) != len(want) {
		t.Fatalf("popped %d requests, want %d", len(kinds), len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("pop %d = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestFrontierTryPopEmpty(t *testing.T) {
	f := NewFrontier()
	if req := f.TryPop(); req != nil {
		t.Fatalf("TryPop on empty frontier = %+v, want nil", req)
	}
}

func TestFrontierPopUnblocksOnClose(t *testing.T) {
	f := NewFrontier()

	done := make(chan *types.Request, 1)
	go func() {
		done <- f.Pop(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	f.Close()

	select {
	case req := <-done:
		if req != nil {
			t.Fatalf("Pop after close = %+v, want nil", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}

func TestFrontierPopUnblocksOnContextCancel(t *testing.T) {
	f := NewFrontier()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan *types.Request, 1)
	go func() {
		done <- f.Pop(ctx)
	}()

	cancel()

	select {
	case req := <-done:
		if req != nil {
			t.Fatalf("Pop after cancel = %+v, want nil", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not unblock after context cancel")
	}
}

func TestFrontierPushAfterCloseDropped(t *testing.T) {
	f := NewFrontier()
	f.Close()
	f.Push(types.NewListingRequest("https://example.com/s?k=x", "x", 1))

	if f.Len() != 0 {
		t.Fatalf("Len = %d after push on closed frontier, want 0", f.Len())
	}
}
