package crawler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/extract"
	"github.com/user/catalog-crawler/internal/monitoring"
	"github.com/user/catalog-crawler/internal/sites"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrNoSites aborts a run that has neither configured sites nor seeds.
var ErrNoSites = errors.New("no sites configured")

// PageAcquirer fetches a page with the site's fallback chain.
type PageAcquirer interface {
	Acquire(ctx context.Context, rawURL string, site domain.SiteConfig) domain.FetchResult
}

// RecordSink receives admitted records.
type RecordSink interface {
	Write(ctx context.Context, rec domain.ProductRecord) error
}

// Options tune a Crawler.
type Options struct {
	// RunID names the run; a random one is generated when empty.
	RunID      string
	Workers    int
	RunLimit   int
	Keywords   Keywords
	Classifier *extract.Classifier
	Metrics    *monitoring.Metrics
}

// Crawler manages the site worker pool and drives each site through its
// lifecycle.
type Crawler struct {
	acquirer  PageAcquirer
	sink      RecordSink
	assembler *Assembler
	keywords  Keywords
	workers   int
	runLimit  int
	runID     string
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	current   atomic.Pointer[RunState]
}

func NewCrawler(acq PageAcquirer, sink RecordSink, opts Options, l *zap.Logger) *Crawler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Crawler{
		acquirer:  acq,
		sink:      sink,
		assembler: NewAssembler(opts.Classifier),
		keywords:  opts.Keywords,
		workers:   opts.Workers,
		runLimit:  opts.RunLimit,
		runID:     opts.RunID,
		metrics:   opts.Metrics,
		logger:    l,
	}
}

// Current returns the live state of the run in progress or the last run.
func (c *Crawler) Current() (domain.RunSummary, bool) {
	rs := c.current.Load()
	if rs == nil {
		return domain.RunSummary{}, false
	}
	return rs.Snapshot(), true
}

// Run crawls every planned site on a bounded pool. One site's failure never
// stops the others; only an empty plan is an error.
func (c *Crawler) Run(ctx context.Context, reg *sites.Registry, seeds []string) (domain.RunSummary, error) {
	plans := reg.BuildPlan(seeds)
	if len(plans) == 0 {
		return domain.RunSummary{}, ErrNoSites
	}

	rs := NewRunState(c.runLimit)
	if c.runID != "" {
		rs.RunID = c.runID
	}
	c.current.Store(rs)
	for _, p := range plans {
		rs.Register(p.Site)
	}
	c.logger.Info("run started",
		zap.String("run_id", rs.RunID),
		zap.Int("sites", len(plans)),
		zap.Int("workers", c.workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, p := range plans {
		g.Go(func() error {
			c.crawlSite(gctx, rs, p)
			return nil
		})
	}
	_ = g.Wait()

	sum := rs.Snapshot()
	sum.Finished = time.Now().UTC()
	total := 0
	for _, s := range sum.Sites {
		total += s.Emitted
	}
	c.logger.Info("run finished",
		zap.String("run_id", rs.RunID),
		zap.Int("records", total),
		zap.Duration("elapsed", sum.Finished.Sub(sum.Started)),
	)
	return sum, nil
}

type queued struct {
	url   string
	depth int
}

func (c *Crawler) crawlSite(ctx context.Context, rs *RunState, p sites.Plan) {
	site := p.Site
	label := site.Label()
	logger := c.logger.With(zap.String("site", label))
	filter := NewFilter(c.keywords, site)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if site.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(site.Delay), 1)
	}

	rs.SetState(label, StateSeeding, "")
	var queue []queued
	for _, s := range p.Seeds {
		if len(queue) >= MaxQueuedPages {
			break
		}
		queue = append(queue, queued{url: s})
	}
	if len(site.Sitemaps) > 0 || site.DiscoverSitemaps {
		for _, u := range c.discoverSitemaps(ctx, site, p.Seeds, filter, MaxQueuedPages-len(queue), logger) {
			queue = append(queue, queued{url: u})
		}
	}
	if len(queue) == 0 {
		rs.SetState(label, StateDone, "no seeds")
		logger.Warn("site has no seeds")
		return
	}

	rs.SetState(label, StateFetching, "")
	reason := "no more pages"
	depthCapped := false
	for len(queue) > 0 {
		if ctx.Err() != nil {
			reason = "cancelled"
			break
		}
		if rs.Full(label) {
			reason = "limit reached"
			break
		}
		item := queue[0]
		queue = queue[1:]
		if !rs.MarkVisited(label, item.url) {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			reason = "cancelled"
			break
		}

		res := c.acquirer.Acquire(ctx, item.url, site)
		rs.PageDone(label, res.Success)
		c.metrics.IncPages(label)
		if !res.Success {
			logger.Info("page skipped", zap.String("url", item.url), zap.String("notes", res.Note()))
			continue
		}
		if site.StaticHint && res.Method == domain.MethodStatic && !hasCards(res, site) {
			res = c.rerender(ctx, res, site, logger)
		}

		if full := c.extractPage(ctx, rs, site, filter, res, logger); full {
			reason = "limit reached"
			break
		}

		if item.depth+1 >= site.MaxPages {
			depthCapped = true
			continue
		}
		rs.SetState(label, StatePaginating, "")
		for _, next := range NextPages(res.HTML, res.URL, site.Selectors) {
			if len(queue) >= MaxQueuedPages {
				break
			}
			if filter.AllowURL(next) {
				queue = append(queue, queued{url: next, depth: item.depth + 1})
			}
		}
		rs.SetState(label, StateFetching, "")
	}
	if reason == "no more pages" && depthCapped {
		reason = "pagination depth reached"
	}

	rs.SetState(label, StateDone, reason)
	logger.Info("site done",
		zap.String("reason", reason),
		zap.Int("records", rs.Emitted(label)),
	)
}

// rerender fetches a static-hinted page again through the render chain when
// its static HTML holds no product cards. The static result is kept when the
// render chain fails too.
func (c *Crawler) rerender(ctx context.Context, res domain.FetchResult, site domain.SiteConfig, logger *zap.Logger) domain.FetchResult {
	dynamic := site
	dynamic.StaticHint = false
	dynamic.Provider = nil

	again := c.acquirer.Acquire(ctx, res.URL, dynamic)
	if !again.Success {
		logger.Debug("render retry failed", zap.String("url", res.URL), zap.String("notes", again.Note()))
		return res
	}
	notes := make([]string, 0, len(res.Notes)+1+len(again.Notes))
	notes = append(notes, res.Notes...)
	notes = append(notes, "static: no product cards")
	again.Notes = append(notes, again.Notes...)
	return again
}

func hasCards(res domain.FetchResult, site domain.SiteConfig) bool {
	for range extract.Locate(res.HTML, res.URL, site.Selectors) {
		return true
	}
	return false
}

// extractPage runs the extraction pipeline over one page and reports whether
// the site's limit was reached.
func (c *Crawler) extractPage(ctx context.Context, rs *RunState, site domain.SiteConfig, filter *Filter, page domain.FetchResult, logger *zap.Logger) bool {
	label := site.Label()
	for card := range extract.Locate(page.HTML, page.URL, site.Selectors) {
		raw := extract.Extract(card, site.Selectors)
		rec, ok := c.assembler.Assemble(raw, site, page)
		if !ok {
			continue
		}
		if allowed, why := filter.AllowRecord(rec); !allowed {
			c.metrics.IncRecords(label, "filtered")
			logger.Debug("record filtered", zap.String("url", rec.ProductURL), zap.String("reason", why))
			continue
		}

		result := rs.Admit(rec)
		c.metrics.IncRecords(label, result.String())
		switch result {
		case LimitReached:
			return true
		case Accepted:
			if err := c.sink.Write(ctx, rec); err != nil {
				c.metrics.IncErrorsTotal("sink_write_failed")
				logger.Error("failed to write record", zap.String("url", rec.ProductURL), zap.Error(err))
			}
		}
	}
	return rs.Full(label)
}
