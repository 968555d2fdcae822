package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/sites"
	"go.uber.org/zap"
)

type fakeAcquirer struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeAcquirer) Acquire(_ context.Context, rawURL string, _ domain.SiteConfig) domain.FetchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	html, ok := f.pages[rawURL]
	if !ok {
		return domain.FetchResult{URL: rawURL, Method: domain.MethodNone, Notes: []string{"static: http status 404"}, StatusCode: 404}
	}
	return domain.FetchResult{URL: rawURL, HTML: html, Method: domain.MethodStatic, Success: true, StatusCode: 200}
}

type memSink struct {
	mu      sync.Mutex
	records []domain.ProductRecord
}

func (s *memSink) Write(_ context.Context, rec domain.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.records {
		out = append(out, r.ProductName)
	}
	return out
}

func listing(next string, items ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, it := range items {
		fmt.Fprintf(&b, `<li class="product"><a href="/p/%s"><h2>%s</h2></a><span class="price">EGP 100</span></li>`,
			strings.ToLower(strings.ReplaceAll(it, " ", "-")), it)
	}
	b.WriteString("</ul>")
	if next != "" {
		fmt.Fprintf(&b, `<a rel="next" href="%s">Next</a>`, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newTestCrawler(acq PageAcquirer, sink RecordSink, opts Options) *Crawler {
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	return NewCrawler(acq, sink, opts, zap.NewNop())
}

func TestCrawler_LimitKeepsDiscoveryOrder(t *testing.T) {
	var items []string
	for i := 1; i <= 10; i++ {
		items = append(items, fmt.Sprintf("Item %d", i))
	}
	acq := &fakeAcquirer{pages: map[string]string{
		"https://shop.example/c/all": listing("/c/all?page=2", items...),
	}}
	sink := &memSink{}
	reg := sites.NewRegistry(map[string]domain.SiteConfig{
		"shop.example": {Name: "Shop", Seeds: []string{"https://shop.example/c/all"}, Limit: 3},
	})

	sum, err := newTestCrawler(acq, sink, Options{}).Run(context.Background(), reg, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"Item 1", "Item 2", "Item 3"}, sink.names())
	assert.Equal(t, 3, sum.Sites["Shop"].Emitted)
	assert.Equal(t, StateDone, sum.Sites["Shop"].State)
	assert.Equal(t, "limit reached", sum.Sites["Shop"].DoneReason)
	assert.Equal(t, []string{"https://shop.example/c/all"}, acq.calls)
	assert.NotEmpty(t, sum.RunID)
}

func TestCrawler_PaginatesAndDeduplicates(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{
		"https://shop.example/c/tv":        listing("/c/tv?page=2", "Alpha", "Beta"),
		"https://shop.example/c/tv?page=2": listing("/c/tv", "Beta", "Gamma"),
	}}
	sink := &memSink{}
	reg := sites.NewRegistry(nil)

	sum, err := newTestCrawler(acq, sink, Options{}).Run(context.Background(), reg, []string{"https://shop.example/c/tv"})

	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, sink.names())
	site := sum.Sites["shop.example"]
	assert.Equal(t, 2, site.Pages)
	assert.Equal(t, "no more pages", site.DoneReason)

	for _, r := range sink.records {
		assert.Equal(t, "shop.example", r.SiteName)
		assert.Equal(t, domain.StatusAvailable, r.Status)
		require.NotNil(t, r.PriceValue)
		assert.Equal(t, 100.0, *r.PriceValue)
		assert.Equal(t, "EGP", r.Currency)
		assert.True(t, strings.HasPrefix(r.ProductURL, "https://shop.example/p/"))
	}
}

func TestCrawler_PaginationDepth(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{
		"https://shop.example/c/tv":        listing("/c/tv?page=2", "Alpha"),
		"https://shop.example/c/tv?page=2": listing("", "Beta"),
	}}
	sink := &memSink{}
	reg := sites.NewRegistry(map[string]domain.SiteConfig{
		"shop.example": {Seeds: []string{"https://shop.example/c/tv"}, MaxPages: 1},
	})

	sum, err := newTestCrawler(acq, sink, Options{}).Run(context.Background(), reg, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, sink.names())
	assert.Equal(t, "pagination depth reached", sum.Sites["shop.example"].DoneReason)
}

func TestCrawler_FailedPagesDoNotStopSite(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{
		"https://b-shop.com/ok": listing("", "Kettle", "Toaster"),
	}}
	sink := &memSink{}
	reg := sites.NewRegistry(nil)

	sum, err := newTestCrawler(acq, sink, Options{}).Run(context.Background(), reg, []string{
		"https://a-shop.com/missing",
		"https://b-shop.com/gone",
		"https://b-shop.com/ok",
	})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Kettle", "Toaster"}, sink.names())
	assert.Equal(t, 0, sum.Sites["a-shop.com"].Emitted)
	assert.Equal(t, 1, sum.Sites["a-shop.com"].FailedPages)
	assert.Equal(t, 2, sum.Sites["b-shop.com"].Pages)
	assert.Equal(t, 1, sum.Sites["b-shop.com"].FailedPages)
}

func TestCrawler_FiltersRecords(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{
		"https://shop.example/c/phones": listing("", "Phone X", "Phone X Case", "Tablet Y"),
	}}
	sink := &memSink{}
	reg := sites.NewRegistry(map[string]domain.SiteConfig{
		"shop.example": {Seeds: []string{"https://shop.example/c/phones"}, ExcludeKeywords: []string{"case"}},
	})
	opts := Options{Keywords: Keywords{Include: []string{"phone"}}}

	_, err := newTestCrawler(acq, sink, opts).Run(context.Background(), reg, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"Phone X"}, sink.names())
}

func TestCrawler_SitemapDiscovery(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{
		"https://shop.example/robots.txt": "User-agent: *\nSitemap: https://shop.example/sitemap_index.xml\n",
		"https://shop.example/sitemap_index.xml": `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://shop.example/sitemap-categories.xml</loc></sitemap>
</sitemapindex>`,
		"https://shop.example/sitemap-categories.xml": `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://shop.example/c/laptops</loc></url>
  <url><loc>https://shop.example/about-us</loc></url>
  <url><loc>https://other.example/c/laptops</loc></url>
</urlset>`,
		"https://shop.example/c/laptops": listing("", "Laptop One"),
	}}
	sink := &memSink{}
	reg := sites.NewRegistry(map[string]domain.SiteConfig{
		"shop.example": {DiscoverSitemaps: true, PathInclude: []string{"/c/"}},
	})

	sum, err := newTestCrawler(acq, sink, Options{}).Run(context.Background(), reg, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"Laptop One"}, sink.names())
	assert.Equal(t, 1, sum.Sites["shop.example"].Pages)
	assert.NotContains(t, acq.calls, "https://shop.example/about-us")
}

func TestCrawler_NoSites(t *testing.T) {
	c := newTestCrawler(&fakeAcquirer{}, &memSink{}, Options{})

	_, err := c.Run(context.Background(), sites.NewRegistry(nil), nil)
	assert.ErrorIs(t, err, ErrNoSites)

	_, ok := c.Current()
	assert.False(t, ok)
}

func TestCrawler_SiteWithoutSeeds(t *testing.T) {
	c := newTestCrawler(&fakeAcquirer{}, &memSink{}, Options{})
	reg := sites.NewRegistry(map[string]domain.SiteConfig{"shop.example": {}})

	sum, err := c.Run(context.Background(), reg, nil)

	require.NoError(t, err)
	assert.Equal(t, "no seeds", sum.Sites["shop.example"].DoneReason)
	live, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, sum.RunID, live.RunID)
}

func TestCrawler_UsesGivenRunID(t *testing.T) {
	acq := &fakeAcquirer{pages: map[string]string{"https://shop.example/c": listing("", "One")}}
	c := newTestCrawler(acq, &memSink{}, Options{RunID: "run-42"})

	sum, err := c.Run(context.Background(), sites.NewRegistry(nil), []string{"https://shop.example/c"})

	require.NoError(t, err)
	assert.Equal(t, "run-42", sum.RunID)
}

// hintAcquirer serves a script-only shell to static fetches and the full
// listing to the render chain.
type hintAcquirer struct {
	mu     sync.Mutex
	shell  string
	full   string
	static int
	render int
}

func (h *hintAcquirer) Acquire(_ context.Context, rawURL string, site domain.SiteConfig) domain.FetchResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if site.StaticHint {
		h.static++
		return domain.FetchResult{URL: rawURL, HTML: h.shell, Method: domain.MethodStatic, Success: true, StatusCode: 200}
	}
	h.render++
	if h.full == "" {
		return domain.FetchResult{URL: rawURL, Method: domain.MethodNone, Notes: []string{"render: browser crashed"}}
	}
	return domain.FetchResult{URL: rawURL, HTML: h.full, Method: domain.MethodRender, Success: true, StatusCode: 200}
}

func TestCrawler_StaticHintFallsBackToRenderWithoutCards(t *testing.T) {
	acq := &hintAcquirer{
		shell: `<html><body><div id="app"></div><script src="/bundle.js"></script></body></html>`,
		full:  listing("", "Rendered One", "Rendered Two"),
	}
	sink := &memSink{}
	reg := sites.NewRegistry(map[string]domain.SiteConfig{
		"shop.example": {Seeds: []string{"https://shop.example/c/spa"}, StaticHint: true},
	})

	sum, err := newTestCrawler(acq, sink, Options{}).Run(context.Background(), reg, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"Rendered One", "Rendered Two"}, sink.names())
	assert.Equal(t, 1, acq.static)
	assert.Equal(t, 1, acq.render)
	assert.Equal(t, 1, sum.Sites["shop.example"].Pages)
	assert.Contains(t, sink.records[0].Notes, "static: no product cards")
	assert.Contains(t, sink.records[0].Notes, "via render")
}

func TestCrawler_StaticHintKeepsStaticPageWithCards(t *testing.T) {
	acq := &hintAcquirer{shell: listing("", "Plain One"), full: listing("", "Never")}
	sink := &memSink{}
	reg := sites.NewRegistry(map[string]domain.SiteConfig{
		"shop.example": {Seeds: []string{"https://shop.example/c/plain"}, StaticHint: true},
	})

	_, err := newTestCrawler(acq, sink, Options{}).Run(context.Background(), reg, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"Plain One"}, sink.names())
	assert.Equal(t, 0, acq.render)
}

func TestCrawler_StaticHintRenderFailureKeepsStaticResult(t *testing.T) {
	acq := &hintAcquirer{shell: `<html><body><p>empty shell</p></body></html>`}
	sink := &memSink{}
	reg := sites.NewRegistry(map[string]domain.SiteConfig{
		"shop.example": {Seeds: []string{"https://shop.example/c/spa"}, StaticHint: true},
	})

	sum, err := newTestCrawler(acq, sink, Options{}).Run(context.Background(), reg, nil)

	require.NoError(t, err)
	assert.Empty(t, sink.names())
	assert.Equal(t, 1, acq.render)
	assert.Equal(t, 0, sum.Sites["shop.example"].FailedPages)
}
