package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/proxy"
	"go.uber.org/zap"
)

// StaticFetcher performs a plain GET with browser-like headers.
type StaticFetcher struct {
	proxies *proxy.Manager
	logger  *zap.Logger
}

func NewStaticFetcher(pm *proxy.Manager, logger *zap.Logger) *StaticFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticFetcher{proxies: pm, logger: logger}
}

// staticAttempts is the number of GETs per Fetch. Only transport errors and
// 5xx responses are retried.
const staticAttempts = 2

// Fetch builds a fresh collector per call so concurrent sites never share
// callbacks. Non-2xx responses are returned with their status, not as errors.
func (s *StaticFetcher) Fetch(ctx context.Context, rawURL string, _ domain.SiteConfig) (Page, error) {
	var (
		page Page
		err  error
	)
	for attempt := 1; attempt <= staticAttempts; attempt++ {
		page, err = s.fetchOnce(ctx, rawURL)
		if !retryable(page, err) || ctx.Err() != nil {
			break
		}
		if attempt < staticAttempts {
			s.logger.Debug("retrying static get", zap.String("url", rawURL), zap.Int("status", page.StatusCode), zap.Error(err))
		}
	}
	return page, err
}

func retryable(p Page, err error) bool {
	if err != nil {
		return true
	}
	return p.StatusCode >= 500
}

func (s *StaticFetcher) fetchOnce(ctx context.Context, rawURL string) (Page, error) {
	c := colly.NewCollector(
		colly.UserAgent(s.proxies.GetUserAgent()),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.StdlibContext(ctx),
	)
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}
	if p := s.proxies.GetProxy(); p != "" {
		if err := c.SetProxy(p); err != nil {
			s.logger.Warn("invalid proxy, fetching directly", zap.String("proxy", p), zap.Error(err))
		}
	}

	var page Page
	var fetchErr error
	c.OnRequest(func(r *colly.Request) {
		for k, v := range proxy.BrowserHeaders() {
			r.Headers.Set(k, v)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.HTML = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			page.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.Visit(rawURL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil && page.StatusCode == 0 {
		return page, fmt.Errorf("static get: %w", fetchErr)
	}
	return page, nil
}
