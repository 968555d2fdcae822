package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/catalog-crawler/internal/domain"
)

func TestNextPages(t *testing.T) {
	html := `<html><head><link rel="next" href="/c/tv?page=2"></head><body>
<nav class="pagination">
  <a href="/c/tv?page=1">1</a>
  <a href="/c/tv?page=2">2</a>
  <a class="next" href="/c/tv?page=2#top">Next</a>
  <a href="https://elsewhere.example/c/tv?page=2">mirror</a>
  <a class="load" href="javascript:void(0)">more</a>
</nav>
<div class="more"><a class="load-more" href="/c/tv/page/3">Load more</a></div>
</body></html>`

	got := NextPages(html, "https://shop.example/c/tv?page=1", domain.Selectors{NextPage: []string{"a.load-more"}})

	assert.Equal(t, []string{
		"https://shop.example/c/tv/page/3",
		"https://shop.example/c/tv?page=2",
	}, got)
}

func TestNextPages_Nothing(t *testing.T) {
	assert.Empty(t, NextPages(`<a href="/p/1">Product</a>`, "https://shop.example/c/tv", domain.Selectors{}))
}

func TestSitemapLocations(t *testing.T) {
	index := `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc> https://shop.example/sitemap-1.xml </loc></sitemap>
  <sitemap><loc>https://shop.example/sitemap-2.xml</loc></sitemap>
</sitemapindex>`
	locs, isIndex, err := SitemapLocations(index)
	require.NoError(t, err)
	assert.True(t, isIndex)
	assert.Equal(t, []string{"https://shop.example/sitemap-1.xml", "https://shop.example/sitemap-2.xml"}, locs)

	urlset := `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc>https://shop.example/c/a</loc></url></urlset>`
	locs, isIndex, err = SitemapLocations(urlset)
	require.NoError(t, err)
	assert.False(t, isIndex)
	assert.Equal(t, []string{"https://shop.example/c/a"}, locs)
}

func TestRobotsSitemaps(t *testing.T) {
	robots := "User-agent: *\nDisallow: /cart\nSitemap: https://shop.example/sitemap.xml\nsitemap:https://shop.example/ar/sitemap.xml\n# Sitemap: ignored\n"

	assert.Equal(t, []string{
		"https://shop.example/sitemap.xml",
		"https://shop.example/ar/sitemap.xml",
	}, RobotsSitemaps(robots))
}
