package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrItemBudget   = errors.New("item budget reached")
	ErrPageBudget   = errors.New("page budget reached")
	ErrDuplicate    = errors.New("duplicate record")
	ErrNoLinks      = errors.New("no product links found")
	ErrNoIdentity   = errors.New("no identity available")
	ErrMaxRetries   = errors.New("max retries exceeded")
	ErrCrawlStopped = errors.New("crawl has been stopped")
)

// FetchError wraps errors that occur while rendering or downloading a page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// BlockError marks a soft block: the site returned a page whose title
// indicates interception rather than content. Never retryable with the
// same identity.
type BlockError struct {
	URL   string
	Title string
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("blocked at %s (title=%q)", e.URL, e.Title)
}

// ParseError wraps errors that occur while extracting data from a page.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the item pipeline.
type PipelineError struct {
	Stage  string
	Record *ProductRecord
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
