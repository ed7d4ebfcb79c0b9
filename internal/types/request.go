package types

import (
	"github.com/IshaanNene/martstalk/internal/identity"
)

// RequestKind distinguishes the two page classes the crawl visits.
type RequestKind string

const (
	KindListing RequestKind = "listing"
	KindDetail  RequestKind = "detail"
)

// Request priorities. Lower value = scheduled sooner. Details run ahead
// of pagination so budgets fill from pages already discovered.
const (
	PriorityDetail  = 10
	PriorityListing = 20
)

// Request is a unit of crawl work queued on the frontier.
type Request struct {
	URL      string
	Kind     RequestKind
	Keyword  string
	ASIN     string // detail requests only
	PageNum  int    // listing requests only, 1-based
	Priority int

	// Identity is nil for listing requests (a fresh one is acquired at
	// fetch time) and inherited from the listing page for details.
	Identity *identity.Identity
}

// NewListingRequest builds a listing-page request.
func NewListingRequest(url, keyword string, pageNum int) *Request {
	return &Request{
		URL:      url,
		Kind:     KindListing,
		Keyword:  keyword,
		PageNum:  pageNum,
		Priority: PriorityListing,
	}
}

// NewDetailRequest builds a detail-page request inheriting the listing's
// identity.
func NewDetailRequest(url, keyword, asin string, id *identity.Identity) *Request {
	return &Request{
		URL:      url,
		Kind:     KindDetail,
		Keyword:  keyword,
		ASIN:     asin,
		Priority: PriorityDetail,
		Identity: id,
	}
}
