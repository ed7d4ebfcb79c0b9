package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/martstalk/internal/config"
	"github.com/IshaanNene/martstalk/internal/extract"
	"github.com/IshaanNene/martstalk/internal/fetcher"
	"github.com/IshaanNene/martstalk/internal/identity"
	"github.com/IshaanNene/martstalk/internal/types"
)

// Readiness selectors per page class. Listing pages are parseable once
// result tiles exist; detail pages once the product container mounts.
const (
	listingReadySelector = `div.s-result-item[data-asin]`
	detailReadySelector  = `#dp-container`
)

// abandonStatus are document statuses where the page carries no product
// data worth parsing. No retry: the listing will surface the product
// again on a future run.
var abandonStatus = map[int]bool{404: true, 503: true}

// Pipeline processes one record through dedup, images, and export.
// A nil record with nil error means the record was dropped.
type Pipeline interface {
	Process(ctx context.Context, rec *types.ProductRecord) (*types.ProductRecord, error)
}

// Controller runs the listing/detail crawl state machine over a worker
// pool. It owns the frontier and shares State with the pipeline.
type Controller struct {
	cfg        *config.Config
	logger     *slog.Logger
	fetcher    fetcher.Fetcher
	identities *identity.Pool
	pipeline   Pipeline
	frontier   *Frontier
	state      *State
	throttle   *Throttle
	stats      Stats
	base       *url.URL

	wg          sync.WaitGroup
	idleWorkers atomic.Int32
	stopOnce    sync.Once
}

// New creates a Controller.
func New(cfg *config.Config, logger *slog.Logger, f fetcher.Fetcher, pool *identity.Pool, pipe Pipeline, state *State) (*Controller, error) {
	base, err := url.Parse(cfg.Crawl.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	return &Controller{
		cfg:        cfg,
		logger:     logger.With("component", "controller"),
		fetcher:    f,
		identities: pool,
		pipeline:   pipe,
		frontier:   NewFrontier(),
		state:      state,
		throttle:   NewThrottle(cfg.Crawl.DownloadDelay, cfg.Crawl.MaxDelay),
		base:       base,
	}, nil
}

// Stats exposes the crawl counters.
func (c *Controller) Stats() *Stats { return &c.stats }

// Stop prevents new work from starting. In-flight fetches complete and
// release their pages normally.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("stopping: no new work will be scheduled")
		c.frontier.Close()
	})
}

// Run crawls the given keyword to completion: seeds the first listing
// page, starts the worker pool, and blocks until the frontier drains.
func (c *Controller) Run(ctx context.Context, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return fmt.Errorf("keyword is required")
	}

	if !c.identities.Enabled() {
		c.logger.Warn("no proxy providers enabled, crawling with direct connection")
	}

	seed := c.searchURL(keyword)
	c.logger.Info("starting crawl",
		"keyword", keyword,
		"seed", seed,
		"max_pages", c.cfg.Crawl.MaxPages,
		"max_items", c.cfg.Crawl.MaxItems,
		"concurrency", c.cfg.Crawl.Concurrency,
	)

	c.frontier.Push(types.NewListingRequest(seed, keyword, 1))

	concurrency := c.cfg.Crawl.Concurrency
	for i := 0; i < concurrency; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
	go c.idleMonitor(ctx, concurrency)

	c.wg.Wait()

	pages, items := c.state.Counts()
	c.logger.Info("crawl complete", "pages", pages, "items", items)
	return nil
}

// searchURL builds the seed listing URL for a keyword.
func (c *Controller) searchURL(keyword string) string {
	u := *c.base
	u.Path = "/s"
	u.RawQuery = url.Values{"k": []string{keyword}}.Encode()
	return u.String()
}

// idleMonitor closes the frontier once every worker has been idle over
// an empty queue for a sustained period.
func (c *Controller) idleMonitor(ctx context.Context, concurrency int) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	idleStreak := 0

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return
		case <-ticker.C:
			if c.frontier.IsClosed() {
				return
			}
			if int(c.idleWorkers.Load()) >= concurrency && c.frontier.IsEmpty() {
				idleStreak++
				if idleStreak >= 3 {
					c.logger.Info("all workers idle and frontier empty, crawl complete")
					c.Stop()
					return
				}
			} else {
				idleStreak = 0
			}
		}
	}
}

// worker dequeues and processes requests until the frontier closes.
func (c *Controller) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	logger := c.logger.With("worker_id", id)

	for {
		c.idleWorkers.Add(1)

		var req *types.Request
		for {
			req = c.frontier.TryPop()
			if req != nil {
				break
			}
			if c.frontier.IsClosed() {
				c.idleWorkers.Add(-1)
				return
			}
			select {
			case <-ctx.Done():
				c.idleWorkers.Add(-1)
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
		c.idleWorkers.Add(-1)

		switch req.Kind {
		case types.KindListing:
			c.processListing(ctx, logger, req)
		case types.KindDetail:
			c.processDetail(ctx, logger, req)
		default:
			logger.Error("unknown request kind", "kind", req.Kind, "url", req.URL)
		}
	}
}

// fetch runs one throttled page fetch and feeds latency back into the
// throttle. The returned Result (when non-nil) carries a live page the
// caller must release.
func (c *Controller) fetch(ctx context.Context, rawURL, selector string, id *identity.Identity) (*fetcher.Result, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := c.fetcher.Fetch(ctx, rawURL, fetcher.Readiness{
		Selector: selector,
		Timeout:  c.cfg.Crawl.SelectorTimeout,
	}, id)
	c.throttle.Observe(time.Since(start), err != nil)
	return res, err
}

// processListing fetches one search results page, schedules detail
// requests for its products, and queues the next page.
func (c *Controller) processListing(ctx context.Context, logger *slog.Logger, req *types.Request) {
	// Each listing page starts a fresh identity; its details and their
	// images inherit it, so one unit of work presents one coherent
	// client to the site.
	id := req.Identity
	if id == nil {
		id = c.identities.Acquire()
	}

	res, err := c.fetch(ctx, req.URL, listingReadySelector, id)
	if err != nil {
		c.handleFetchFailure(logger, req.URL, res, err)
		return
	}
	defer res.Page.Close()

	if abandonStatus[res.StatusCode] {
		logger.Warn("listing page unavailable, abandoning", "url", req.URL, "status", res.StatusCode)
		return
	}

	c.stats.ListingsFetched.Add(1)
	c.state.ReservePage()

	links := extract.Links(res.Doc, c.base)
	c.stats.LinksDiscovered.Add(int64(len(links)))
	logger.Info("listing parsed", "page", req.PageNum, "links", len(links))

	if len(links) == 0 {
		logger.Warn("no product links found, capturing page for inspection",
			"url", req.URL, "page", req.PageNum)
		c.captureNoLinks(res.Page, req.PageNum)
	}

	for _, link := range links {
		if c.state.ItemBudgetReached() {
			logger.Info("item budget reached, not scheduling more details")
			break
		}
		c.frontier.Push(types.NewDetailRequest(link.URL, req.Keyword, link.ASIN, id))
	}

	if c.state.PageBudgetReached() {
		logger.Info("page budget reached, stopping pagination", "page", req.PageNum)
		return
	}
	if next := extract.NextPageURL(res.Doc, c.base); next != "" {
		c.frontier.Push(types.NewListingRequest(next, req.Keyword, req.PageNum+1))
	} else {
		logger.Info("no next page link, pagination ends", "page", req.PageNum)
	}
}

// processDetail fetches one product page and emits its base record plus
// variant records, each counted against the item budget.
func (c *Controller) processDetail(ctx context.Context, logger *slog.Logger, req *types.Request) {
	id := req.Identity
	if id == nil {
		id = c.identities.Acquire()
	}

	res, err := c.fetch(ctx, req.URL, detailReadySelector, id)
	if err != nil {
		c.handleFetchFailure(logger, req.URL, res, err)
		return
	}
	defer res.Page.Close()

	if abandonStatus[res.StatusCode] {
		logger.Warn("product page unavailable, abandoning",
			"url", req.URL, "asin", req.ASIN, "status", res.StatusCode)
		return
	}

	c.stats.DetailsFetched.Add(1)

	detail := extract.ParseDetail(res.Doc, res.HTML, req.ASIN, logger)
	if detail.MainImageURL == "" {
		logger.Warn("no main image resolved", "asin", req.ASIN)
	}

	base := &types.ProductRecord{
		Keyword:      req.Keyword,
		ProductURL:   res.FinalURL,
		ASIN:         req.ASIN,
		Title:        detail.Title,
		MainImageURL: detail.MainImageURL,
		IsVariation:  false,
		CrawledAt:    time.Now(),
		Identity:     id,
	}
	if detail.MainImageURL != "" {
		base.ImageURLs = []string{detail.MainImageURL}
	}

	if !c.state.ReserveItem() {
		logger.Info("item budget reached, discarding parsed product", "asin", req.ASIN)
		return
	}
	c.emit(ctx, logger, base)

	if len(detail.Variants) > 0 {
		logger.Info("variants found", "asin", req.ASIN, "count", len(detail.Variants))
	}
	for _, v := range detail.Variants {
		if !c.state.ReserveItem() {
			logger.Info("item budget reached, stopping variant emission", "asin", req.ASIN)
			return
		}
		c.emit(ctx, logger, variantRecord(base, v))
	}
}

// variantRecord derives a variant's record from its base product.
func variantRecord(base *types.ProductRecord, v extract.Variant) *types.ProductRecord {
	productURL := base.ProductURL
	if i := strings.Index(productURL, "/dp/"); i >= 0 {
		productURL = productURL[:i] + "/dp/" + v.ASIN
	}

	return &types.ProductRecord{
		Keyword:        base.Keyword,
		ProductURL:     productURL,
		ASIN:           v.ASIN,
		Title:          fmt.Sprintf("%s (%s)", base.Title, v.Value),
		MainImageURL:   v.ImageURL,
		ImageURLs:      []string{v.ImageURL},
		IsVariation:    true,
		VariationType:  extract.VariationAxis,
		VariationValue: v.Value,
		CrawledAt:      time.Now(),
		Identity:       base.Identity,
	}
}

// emit pushes one record through the pipeline.
func (c *Controller) emit(ctx context.Context, logger *slog.Logger, rec *types.ProductRecord) {
	out, err := c.pipeline.Process(ctx, rec)
	if err != nil {
		c.stats.RecordsDropped.Add(1)
		logger.Warn("pipeline rejected record", "id", rec.ID(), "error", err)
		return
	}
	if out == nil {
		c.stats.RecordsDropped.Add(1)
		logger.Debug("record dropped by pipeline", "id", rec.ID())
		return
	}
	c.stats.RecordsEmitted.Add(1)
}

// handleFetchFailure classifies a failed fetch, captures diagnostics
// from the page when one survived, and releases it.
func (c *Controller) handleFetchFailure(logger *slog.Logger, rawURL string, res *fetcher.Result, err error) {
	var blockErr *types.BlockError
	if errors.As(err, &blockErr) {
		c.stats.PagesBlocked.Add(1)
		logger.Error("soft block detected, abandoning page",
			"url", rawURL, "title", blockErr.Title)
	} else {
		c.stats.FetchesFailed.Add(1)
		logger.Error("fetch failed", "url", rawURL, "error", err)
	}

	if res != nil && res.Page != nil {
		c.captureFailure(res.Page, rawURL)
		res.Page.Close()
	}
}

// captureFailure saves a timestamped screenshot of a failed page.
func (c *Controller) captureFailure(page *fetcher.Page, rawURL string) {
	ts := time.Now().Format("20060102_150405.000")
	path := filepath.Join(c.cfg.Crawl.DiagnosticsDir, fmt.Sprintf("error_screenshot_%s.png", ts))
	if err := page.Screenshot(path); err != nil {
		c.logger.Error("failed to save error screenshot", "url", rawURL, "error", err)
		return
	}
	c.logger.Info("error screenshot saved", "path", path, "url", rawURL)
}

// captureNoLinks saves the source and a screenshot of a listing page
// that yielded no product links, for selector debugging.
func (c *Controller) captureNoLinks(page *fetcher.Page, pageNum int) {
	dir := c.cfg.Crawl.DiagnosticsDir
	htmlPath := filepath.Join(dir, fmt.Sprintf("page_%d_nolinks_source.html", pageNum))
	shotPath := filepath.Join(dir, fmt.Sprintf("page_%d_nolinks_screenshot.png", pageNum))

	if err := page.SaveHTML(htmlPath); err != nil {
		c.logger.Error("failed to save page source", "error", err)
	}
	if err := page.Screenshot(shotPath); err != nil {
		c.logger.Error("failed to save page screenshot", "error", err)
	}
}
