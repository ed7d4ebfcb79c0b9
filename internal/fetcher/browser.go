package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/martstalk/internal/config"
	"github.com/IshaanNene/martstalk/internal/identity"
	"github.com/IshaanNene/martstalk/internal/types"
)

// BrowserFetcher renders pages via a headless Chromium instance. Each
// fetch gets its own browser context so the identity's proxy applies to
// that navigation only.
type BrowserFetcher struct {
	browser *rod.Browser
	cfg     *config.Config
	logger  *slog.Logger
}

// BrowserOption configures the BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// NewBrowserFetcher launches Chromium and connects to it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger, opts ...BrowserOption) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:    cfg,
		logger: logger.With("component", "browser_fetcher"),
	}

	for _, opt := range opts {
		opt(bf)
	}

	launchURL, err := bf.launchBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	bf.browser = browser

	bf.logger.Info("browser fetcher ready", "headless", cfg.Fetcher.Headless)
	return bf, nil
}

// launchBrowser starts Chromium with automation markers suppressed and
// WebRTC address leaking disabled (the exit IP must be the proxy's).
func (bf *BrowserFetcher) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(bf.cfg.Fetcher.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("lang", bf.cfg.Identity.Locale).
		Set("disable-features", "WebRtcHideLocalIpsWithMdns").
		Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp")

	return l.Launch()
}

// Fetch implements Fetcher.
func (bf *BrowserFetcher) Fetch(ctx context.Context, rawURL string, ready Readiness, id *identity.Identity) (*Result, error) {
	start := time.Now()

	pg, err := bf.newPage(ctx, id)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: true}
	}

	timeout := bf.cfg.Crawl.RequestTimeout
	page := pg.page.Context(ctx)

	// Capture the status of the main document response. Rendered pages
	// do not surface it otherwise, and 404/503 need distinct handling.
	statusCode := 200
	waitStatus := page.Timeout(timeout).EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument {
			statusCode = e.Response.Status
			return true
		}
		return false
	})

	if err := page.Timeout(timeout).Navigate(rawURL); err != nil {
		pg.Close()
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: true}
	}
	waitStatus()

	// Readiness: wait for the caller's selector, but a slow or missing
	// element is not fatal. Whatever rendered gets parsed.
	if ready.Selector != "" {
		selTimeout := ready.Timeout
		if selTimeout <= 0 {
			selTimeout = bf.cfg.Crawl.SelectorTimeout
		}
		el, err := page.Timeout(selTimeout).Element(ready.Selector)
		if err != nil {
			bf.logger.Warn("readiness selector not found, parsing anyway",
				"url", rawURL, "selector", ready.Selector, "error", err)
		} else if err := el.WaitVisible(); err != nil {
			bf.logger.Warn("readiness selector not visible", "url", rawURL, "selector", ready.Selector)
		}
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Debug("page stability timeout, continuing", "url", rawURL)
	}

	title := ""
	finalURL := rawURL
	if info, err := page.Info(); err == nil && info != nil {
		title = info.Title
		finalURL = info.URL
	}

	res := &Result{
		Title:      title,
		FinalURL:   finalURL,
		StatusCode: statusCode,
		Duration:   time.Since(start),
		Page:       pg,
	}

	// A soft block is detected from the title alone. The page handle is
	// still returned so the caller can capture a screenshot before
	// releasing it.
	if IsBlockTitle(title) {
		return res, &types.BlockError{URL: rawURL, Title: title}
	}

	html, err := page.HTML()
	if err != nil {
		pg.Close()
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: true}
	}
	res.HTML = html

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		pg.Close()
		return nil, &types.ParseError{URL: rawURL, Err: err}
	}
	res.Doc = doc

	bf.logger.Debug("browser fetch complete",
		"url", rawURL,
		"final_url", finalURL,
		"status", statusCode,
		"size", len(html),
		"duration", res.Duration,
	)

	return res, nil
}

// Close shuts down the browser.
func (bf *BrowserFetcher) Close() error {
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// newPage creates a page in a fresh browser context carrying the
// identity's proxy and fingerprint. A nil identity yields a direct
// connection with default fingerprint spoofing only.
func (bf *BrowserFetcher) newPage(ctx context.Context, id *identity.Identity) (*Page, error) {
	var contextID proto.BrowserBrowserContextID

	createTarget := proto.TargetCreateTarget{URL: "about:blank"}
	if id != nil {
		bp := id.BrowserProxy()
		ctxRes, err := proto.TargetCreateBrowserContext{
			ProxyServer: bp.Server,
		}.Call(bf.browser)
		if err != nil {
			return nil, fmt.Errorf("create browser context: %w", err)
		}
		contextID = ctxRes.BrowserContextID
		createTarget.BrowserContextID = contextID

		if bp.Username != "" {
			// Answers the proxy's auth challenge for this navigation.
			go func() {
				if err := bf.browser.HandleAuth(bp.Username, bp.Password)(); err != nil {
					bf.logger.Debug("proxy auth handler", "error", err)
				}
			}()
		}
	}

	page, err := bf.browser.Page(createTarget)
	if err != nil {
		bf.disposeContext(contextID)
		return nil, fmt.Errorf("create page: %w", err)
	}

	pg := &Page{
		page:      page,
		browser:   bf.browser,
		contextID: contextID,
		logger:    bf.logger,
	}

	if err := bf.applyFingerprint(page, id); err != nil {
		pg.Close()
		return nil, err
	}

	return pg, nil
}

// applyFingerprint installs the stealth patches, spoof script, and
// emulation overrides before any navigation happens.
func (bf *BrowserFetcher) applyFingerprint(page *rod.Page, id *identity.Identity) error {
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return fmt.Errorf("inject stealth script: %w", err)
	}

	fp := bf.fingerprintFor(id)
	if _, err := page.EvalOnNewDocument(SpoofJS(fp)); err != nil {
		return fmt.Errorf("inject spoof script: %w", err)
	}

	if fp.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: fp.UserAgent})
		if err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if fp.ViewportWidth > 0 && fp.ViewportHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             fp.ViewportWidth,
			Height:            fp.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			bf.logger.Warn("failed to set viewport", "error", err)
		}
	}

	if fp.Timezone != "" {
		err := proto.EmulationSetTimezoneOverride{TimezoneID: fp.Timezone}.Call(page)
		if err != nil {
			bf.logger.Warn("failed to set timezone override", "error", err)
		}
	}
	if fp.Locale != "" {
		err := proto.EmulationSetLocaleOverride{Locale: fp.Locale}.Call(page)
		if err != nil {
			bf.logger.Warn("failed to set locale override", "error", err)
		}
	}

	if id != nil && len(id.Headers) > 0 {
		headers := make([]string, 0, len(id.Headers)*2)
		for k, v := range id.Headers {
			headers = append(headers, k, v)
		}
		_, _ = page.SetExtraHeaders(headers)
	}

	return nil
}

// fingerprintFor returns the identity's fingerprint, or the configured
// baseline when crawling without one.
func (bf *BrowserFetcher) fingerprintFor(id *identity.Identity) identity.Fingerprint {
	if id != nil {
		return id.Fingerprint
	}
	ua := ""
	if agents := bf.cfg.Identity.UserAgents; len(agents) > 0 {
		ua = agents[rand.Intn(len(agents))]
	}
	return identity.Fingerprint{
		UserAgent:          ua,
		Locale:             bf.cfg.Identity.Locale,
		Timezone:           bf.cfg.Identity.Timezone,
		DisableGeolocation: bf.cfg.Identity.DisableGeolocation,
		ViewportWidth:      bf.cfg.Identity.ViewportWidth,
		ViewportHeight:     bf.cfg.Identity.ViewportHeight,
	}
}

func (bf *BrowserFetcher) disposeContext(contextID proto.BrowserBrowserContextID) {
	if contextID == "" {
		return
	}
	_ = proto.TargetDisposeBrowserContext{BrowserContextID: contextID}.Call(bf.browser)
}
