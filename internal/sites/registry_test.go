package sites

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/catalog-crawler/internal/domain"
)

func TestKey(t *testing.T) {
	tests := map[string]string{
		"https://www.Shop.example.com/c/phones?page=2": "example.com",
		"shop.example.com":                             "example.com",
		"https://store.com.eg/ar/":                     "store.com.eg",
		"www.noon.com":                                 "noon.com",
		"http://127.0.0.1:8080/list":                   "127.0.0.1",
		"  ":                                           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Key(in), in)
	}
}

func TestRegistry_LookupAndResolve(t *testing.T) {
	r := NewRegistry(map[string]domain.SiteConfig{
		"btech":    {Domain: "www.btech.com", Name: "B.TECH", StaticHint: true, Limit: 5},
		"noon.com": {Name: "Noon", MaxPages: 3},
	})
	require.Equal(t, 2, r.Len())

	cfg, ok := r.Lookup("https://btech.com/en/mobiles")
	require.True(t, ok)
	assert.Equal(t, "btech.com", cfg.Domain)
	assert.Equal(t, "B.TECH", cfg.Label())
	assert.True(t, cfg.StaticHint)
	assert.Equal(t, DefaultMaxPages, cfg.MaxPages)

	_, ok = r.Lookup("https://unknown.example/")
	assert.False(t, ok)

	fallback := r.Resolve("https://unknown.example/shop")
	assert.Equal(t, "unknown.example", fallback.Domain)
	assert.Equal(t, "unknown.example", fallback.Label())
	assert.Equal(t, DefaultMaxPages, fallback.MaxPages)

	// Key is the map key when Domain is empty.
	noon, ok := r.Lookup("https://www.noon.com/egypt-en/")
	require.True(t, ok)
	assert.Equal(t, 3, noon.MaxPages)
}

func TestRegistry_BuildPlan(t *testing.T) {
	r := NewRegistry(map[string]domain.SiteConfig{
		"a": {Domain: "a-shop.com", Seeds: []string{"https://a-shop.com/phones"}},
		"b": {Domain: "b-shop.com", Sitemaps: []string{"https://b-shop.com/sitemap.xml"}},
	})

	plans := r.BuildPlan([]string{
		"https://c-shop.com/tv",
		"https://a-shop.com/laptops",
		"https://c-shop.com/audio",
		"https://a-shop.com/phones",
		"not a url",
	})

	require.Len(t, plans, 3)
	assert.Equal(t, "a-shop.com", plans[0].Site.Domain)
	assert.Equal(t, []string{"https://a-shop.com/phones", "https://a-shop.com/laptops"}, plans[0].Seeds)
	assert.Equal(t, "b-shop.com", plans[1].Site.Domain)
	assert.Empty(t, plans[1].Seeds)
	assert.Equal(t, "c-shop.com", plans[2].Site.Domain)
	assert.Equal(t, []string{"https://c-shop.com/tv", "https://c-shop.com/audio"}, plans[2].Seeds)
}

func TestSameSite(t *testing.T) {
	assert.True(t, SameSite("https://www.a-shop.com/x", "https://m.a-shop.com/y"))
	assert.False(t, SameSite("https://a-shop.com/x", "https://b-shop.com/x"))
	assert.False(t, SameSite("", ""))
}
