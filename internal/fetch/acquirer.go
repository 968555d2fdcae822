// Package fetch decides how a page is retrieved and runs the ordered fallback
// chain of provider, static and headless strategies.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/monitoring"
	"go.uber.org/zap"
)

// Page is the raw outcome of one strategy.
type Page struct {
	HTML       string
	StatusCode int
}

// Fetcher retrieves one URL with a single strategy. The context carries the
// attempt deadline.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, site domain.SiteConfig) (Page, error)
}

// Timeouts bound each strategy when the site config sets none.
type Timeouts struct {
	Provider time.Duration
	Static   time.Duration
	Render   time.Duration
}

// DefaultTimeouts mirror typical storefront latency behind an unblocker.
var DefaultTimeouts = Timeouts{
	Provider: 60 * time.Second,
	Static:   25 * time.Second,
	Render:   45 * time.Second,
}

// Acquirer is the only component that fetches pages.
type Acquirer struct {
	provider Fetcher
	static   Fetcher
	render   Fetcher
	timeouts Timeouts
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// Option customises an Acquirer.
type Option func(*Acquirer)

func WithProvider(f Fetcher) Option { return func(a *Acquirer) { a.provider = f } }
func WithStatic(f Fetcher) Option { return func(a *Acquirer) { a.static = f } }
func WithRender(f Fetcher) Option { return func(a *Acquirer) { a.render = f } }
func WithTimeouts(t Timeouts) Option { return func(a *Acquirer) { a.timeouts = t } }
func WithMetrics(m *monitoring.Metrics) Option { return func(a *Acquirer) { a.metrics = m } }

func NewAcquirer(logger *zap.Logger, opts ...Option) *Acquirer {
	a := &Acquirer{timeouts: DefaultTimeouts, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

type step struct {
	method  domain.FetchMethod
	fetcher Fetcher
	timeout time.Duration
}

// Plan returns the ordered strategies for a site. A configured provider goes
// first. Static-hinted sites then use a plain GET only; every other site tries
// a headless render and falls back to the plain GET.
func (a *Acquirer) Plan(site domain.SiteConfig) []domain.FetchMethod {
	steps := a.plan(site)
	out := make([]domain.FetchMethod, len(steps))
	for i, s := range steps {
		out[i] = s.method
	}
	return out
}

func (a *Acquirer) plan(site domain.SiteConfig) []step {
	var steps []step
	if site.Provider != nil {
		steps = append(steps, step{
			method:  domain.ProviderMethod(site.Provider.Name),
			fetcher: a.provider,
			timeout: site.Provider.Timeout(a.timeouts.Provider),
		})
	}
	staticStep := step{method: domain.MethodStatic, fetcher: a.static, timeout: pick(site.StaticTimeout, a.timeouts.Static)}
	if site.StaticHint {
		return append(steps, staticStep)
	}
	return append(steps,
		step{method: domain.MethodRender, fetcher: a.render, timeout: pick(site.RenderTimeout, a.timeouts.Render)},
		staticStep,
	)
}

func pick(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

// Acquire runs the plan until one strategy returns usable HTML. The result
// carries the failure note of every attempt that ran before it. When every
// strategy fails the method is "none" and HTML is empty.
func (a *Acquirer) Acquire(ctx context.Context, rawURL string, site domain.SiteConfig) domain.FetchResult {
	res := domain.FetchResult{URL: rawURL, Method: domain.MethodNone}
	logger := a.logger.With(zap.String("site", site.Domain), zap.String("url", rawURL))

	for _, st := range a.plan(site) {
		if err := ctx.Err(); err != nil {
			res.Notes = append(res.Notes, fmt.Sprintf("%s: %v", st.method, err))
			break
		}
		if st.fetcher == nil {
			res.Notes = append(res.Notes, fmt.Sprintf("%s: strategy not configured", st.method))
			continue
		}

		start := time.Now()
		page, err := a.attempt(ctx, st, rawURL, site)
		res.StatusCode = page.StatusCode
		if err == nil {
			err = checkPage(page)
		}
		if err != nil {
			a.metrics.ObserveFetch(string(st.method), outcome(err), time.Since(start))
			logger.Debug("fetch attempt failed", zap.String("method", string(st.method)), zap.Error(err))
			res.Notes = append(res.Notes, fmt.Sprintf("%s: %v", st.method, err))
			continue
		}

		a.metrics.ObserveFetch(string(st.method), "success", time.Since(start))
		res.HTML = page.HTML
		res.Method = st.method
		res.Success = true
		return res
	}

	a.metrics.IncErrorsTotal("fetch_failed")
	logger.Warn("all fetch strategies failed", zap.String("notes", res.Note()))
	return res
}

func (a *Acquirer) attempt(ctx context.Context, st step, rawURL string, site domain.SiteConfig) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()
	page, err := st.fetcher.Fetch(ctx, rawURL, site)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return page, fmt.Errorf("timeout after %s: %w", st.timeout, err)
	}
	return page, err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrEmptyBody):
		return "empty"
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrUnknownProvider):
		return "config"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	var se *StatusError
	if errors.As(err, &se) {
		return "status"
	}
	return "error"
}
