package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/martstalk/internal/identity"
)

// Readiness tells the fetcher which element signals that a page has
// rendered enough to parse. A selector timing out is tolerated: the
// page content as-is goes to extraction, which treats missing data as
// absent rather than failing.
type Readiness struct {
	Selector string
	Timeout  time.Duration
}

// Result is a rendered page. Page is a live browser handle the caller
// owns: it MUST be closed exactly once, on every path, including after
// an error that still returned a Result.
type Result struct {
	HTML       string
	Doc        *goquery.Document
	Title      string
	FinalURL   string
	StatusCode int
	Duration   time.Duration
	Page       *Page
}

// Fetcher renders pages through a real browser.
type Fetcher interface {
	// Fetch navigates to rawURL with the given identity (nil = direct
	// connection) and returns the rendered page. A non-nil Result may
	// accompany an error so the caller can capture diagnostics before
	// releasing the page.
	Fetch(ctx context.Context, rawURL string, ready Readiness, id *identity.Identity) (*Result, error)

	// Close releases the underlying browser.
	Close() error
}

// blockMarkers are title substrings that mark an interception page.
// Matched case-insensitively. "sorry" covers the interstitial served
// under several titles; "robot check" the captcha wall.
var blockMarkers = []string{"page not found", "sorry", "robot check"}

// IsBlockTitle reports whether a page title indicates a soft block.
func IsBlockTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
