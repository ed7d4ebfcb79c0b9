package crawl

import (
	"sync/atomic"
)

// Stats tracks crawl counters. All fields are safe for concurrent use.
type Stats struct {
	ListingsFetched atomic.Int64
	DetailsFetched  atomic.Int64
	PagesBlocked    atomic.Int64
	FetchesFailed   atomic.Int64
	LinksDiscovered atomic.Int64
	RecordsEmitted  atomic.Int64
	RecordsDropped  atomic.Int64
}

// Snapshot returns a point-in-time copy of all counters.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"listings_fetched": s.ListingsFetched.Load(),
		"details_fetched":  s.DetailsFetched.Load(),
		"pages_blocked":    s.PagesBlocked.Load(),
		"fetches_failed":   s.FetchesFailed.Load(),
		"links_discovered": s.LinksDiscovered.Load(),
		"records_emitted":  s.RecordsEmitted.Load(),
		"records_dropped":  s.RecordsDropped.Load(),
	}
}
