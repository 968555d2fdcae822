package crawler

import (
	"bufio"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/sites"
	"github.com/user/catalog-crawler/pkg/utils"
	"go.uber.org/zap"
)

const (
	// MaxQueuedPages bounds the pending pages of one site.
	MaxQueuedPages = 60
	// maxSitemaps bounds how many sitemap documents one site may read,
	// index children included.
	maxSitemaps = 12
)

// DefaultNextPageSelectors locate pagination links when a site sets none.
var DefaultNextPageSelectors = []string{
	"a[rel='next']",
	"link[rel='next']",
	"a.next",
	"a.pagination__next",
	"a.page-link[rel='next']",
	"a[aria-label*='Next' i]",
	"li.pagination-next a",
	".pagination a.next",
	"a.next.page-numbers",
	"a[href*='?page=']",
	"a[href*='&page=']",
	"a[href*='/page/']",
}

// NextPages returns same-site pagination links found on a page, in selector
// order and without repeats. The page's own URL is never returned.
func NextPages(html, pageURL string, sel domain.Selectors) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	self := utils.CanonURL(pageURL)
	seen := map[string]struct{}{self: {}}
	var out []string
	for _, css := range append(append([]string{}, sel.NextPage...), DefaultNextPageSelectors...) {
		doc.Find(css).Each(func(_ int, s *goquery.Selection) {
			href := strings.TrimSpace(s.AttrOr("href", ""))
			if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
				return
			}
			abs := utils.ToAbsoluteURL(pageURL, href)
			if !utils.IsHTTP(abs) || !sites.SameSite(abs, pageURL) {
				return
			}
			key := utils.CanonURL(abs)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			out = append(out, abs)
		})
	}
	return out
}

// SitemapLocations parses a sitemap or sitemap index. isIndex reports which
// of the two the document was.
func SitemapLocations(body string) (locs []string, isIndex bool, err error) {
	doc, err := xmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	isIndex = xmlquery.FindOne(doc, "//*[local-name()='sitemapindex']") != nil
	for _, n := range xmlquery.Find(doc, "//*[local-name()='loc']") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, isIndex, nil
}

// RobotsSitemaps returns the Sitemap: lines of a robots.txt body.
func RobotsSitemaps(body string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) < len("sitemap:") || !strings.EqualFold(line[:len("sitemap:")], "sitemap:") {
			continue
		}
		if loc := strings.TrimSpace(line[len("sitemap:"):]); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

// discoverSitemaps reads the configured sitemaps and, when enabled, those
// listed in robots.txt. Indexes are followed one level. Only same-site
// locations passing the URL filter are kept, at most limit of them.
func (c *Crawler) discoverSitemaps(ctx context.Context, site domain.SiteConfig, seeds []string, filter *Filter, limit int, logger *zap.Logger) []string {
	// Sitemaps and robots.txt are plain documents; a browser would wrap them.
	plain := site
	plain.Provider = nil
	plain.StaticHint = true

	sources := append([]string{}, site.Sitemaps...)
	if site.DiscoverSitemaps {
		robots := siteOrigin(site, seeds) + "/robots.txt"
		if res := c.acquirer.Acquire(ctx, robots, plain); res.Success {
			sources = append(sources, RobotsSitemaps(res.HTML)...)
		} else {
			logger.Debug("robots.txt unavailable", zap.String("notes", res.Note()))
		}
	}

	var out []string
	read := 0
	queued := map[string]struct{}{}
	var walk func(src string, depth int)
	walk = func(src string, depth int) {
		if read >= maxSitemaps || len(out) >= limit || ctx.Err() != nil {
			return
		}
		read++
		res := c.acquirer.Acquire(ctx, src, plain)
		if !res.Success {
			logger.Debug("sitemap unavailable", zap.String("sitemap", src), zap.String("notes", res.Note()))
			return
		}
		locs, isIndex, err := SitemapLocations(res.HTML)
		if err != nil {
			logger.Debug("sitemap not parseable", zap.String("sitemap", src), zap.Error(err))
			return
		}
		for _, loc := range locs {
			if isIndex {
				if depth == 0 {
					walk(loc, depth+1)
				}
				continue
			}
			if len(out) >= limit {
				return
			}
			if !utils.IsHTTP(loc) || !sites.SameSite(loc, site.Domain) || !filter.AllowURL(loc) {
				continue
			}
			key := utils.CanonURL(loc)
			if _, dup := queued[key]; dup {
				continue
			}
			queued[key] = struct{}{}
			out = append(out, loc)
		}
	}
	for _, src := range sources {
		walk(src, 0)
	}
	return out
}

func siteOrigin(site domain.SiteConfig, seeds []string) string {
	for _, s := range seeds {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return "https://" + site.Domain
}
