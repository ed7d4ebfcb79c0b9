package fetcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Page wraps a live browser page together with the browser context it
// was created in. Close is idempotent, so every error-handling path can
// call it without coordinating who releases first.
type Page struct {
	page      *rod.Page
	browser   *rod.Browser
	contextID proto.BrowserBrowserContextID
	closed    atomic.Bool
	logger    *slog.Logger
}

// Close releases the page and its browser context. Safe to call more
// than once and on a nil receiver; only the first call does work.
func (p *Page) Close() {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return
	}
	if err := p.page.Close(); err != nil {
		p.logger.Debug("page close", "error", err)
	}
	if p.contextID != "" {
		err := proto.TargetDisposeBrowserContext{BrowserContextID: p.contextID}.Call(p.browser)
		if err != nil {
			p.logger.Debug("dispose browser context", "error", err)
		}
	}
}

// Screenshot saves a full-page screenshot to path. No-op after Close.
func (p *Page) Screenshot(path string) error {
	if p == nil || p.closed.Load() {
		return fmt.Errorf("screenshot %s: page already closed", path)
	}
	data, err := p.page.Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("screenshot %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("screenshot %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// SaveHTML writes the page's current HTML to path. No-op after Close.
func (p *Page) SaveHTML(path string) error {
	if p == nil || p.closed.Load() {
		return fmt.Errorf("save html %s: page already closed", path)
	}
	html, err := p.page.HTML()
	if err != nil {
		return fmt.Errorf("save html %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save html %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(html), 0o644)
}
