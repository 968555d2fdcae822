// Package sites maps URLs to the per-domain crawl configuration.
package sites

import (
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/pkg/utils"
	"golang.org/x/net/publicsuffix"
)

// DefaultMaxPages is the pagination depth used when a site sets none.
const DefaultMaxPages = 10

// Registry holds immutable site configs keyed by registrable domain.
type Registry struct {
	sites map[string]domain.SiteConfig
}

// NewRegistry indexes configs by the registrable domain of their Domain
// field. Later entries for the same domain replace earlier ones.
func NewRegistry(configs map[string]domain.SiteConfig) *Registry {
	r := &Registry{sites: make(map[string]domain.SiteConfig, len(configs))}
	for name, cfg := range configs {
		if cfg.Domain == "" {
			cfg.Domain = name
		}
		key := Key(cfg.Domain)
		if key == "" {
			continue
		}
		r.sites[key] = withDefaults(cfg, key)
	}
	return r
}

func withDefaults(cfg domain.SiteConfig, key string) domain.SiteConfig {
	cfg.Domain = key
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Limit < 0 {
		cfg.Limit = 0
	}
	return cfg
}

// Key returns the registrable domain (eTLD+1) for a host or URL, lowercased.
// IP addresses and hosts without a public suffix fall back to the bare
// hostname.
func Key(hostOrURL string) string {
	s := strings.TrimSpace(strings.ToLower(hostOrURL))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Hostname()
	} else if i := strings.IndexAny(s, "/:"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "www."), ".")
	if s == "" || net.ParseIP(s) != nil {
		return s
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(s); err == nil {
		return etld1
	}
	return s
}

// Lookup returns the config registered for the domain of rawURL.
func (r *Registry) Lookup(rawURL string) (domain.SiteConfig, bool) {
	cfg, ok := r.sites[Key(rawURL)]
	return cfg, ok
}

// Resolve returns the registered config, or a default config for an
// unregistered domain.
func (r *Registry) Resolve(rawURL string) domain.SiteConfig {
	if cfg, ok := r.Lookup(rawURL); ok {
		return cfg
	}
	key := Key(rawURL)
	return withDefaults(domain.SiteConfig{Domain: key}, key)
}

// Len returns the number of registered sites.
func (r *Registry) Len() int {
	return len(r.sites)
}

// Sites returns every registered config ordered by domain.
func (r *Registry) Sites() []domain.SiteConfig {
	keys := make([]string, 0, len(r.sites))
	for k := range r.sites {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]domain.SiteConfig, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.sites[k])
	}
	return out
}

// SameSite reports whether two URLs share a registrable domain.
func SameSite(a, b string) bool {
	ka := Key(a)
	return ka != "" && ka == Key(b)
}

// Plan is the ordered set of sites to crawl with their seed URLs.
type Plan struct {
	Site  domain.SiteConfig
	Seeds []string
}

// BuildPlan merges configured seeds with the seed list. Seed-list URLs are
// grouped by domain in first-seen order; domains with no registered config
// get defaults. Registered sites with no seeds at all are still planned so
// sitemap discovery can run.
func (r *Registry) BuildPlan(seedList []string) []Plan {
	index := map[string]int{}
	var plans []Plan
	add := func(cfg domain.SiteConfig, seed string) {
		i, ok := index[cfg.Domain]
		if !ok {
			i = len(plans)
			index[cfg.Domain] = i
			plans = append(plans, Plan{Site: cfg})
		}
		if seed != "" && !slices.Contains(plans[i].Seeds, seed) {
			plans[i].Seeds = append(plans[i].Seeds, seed)
		}
	}

	for _, cfg := range r.Sites() {
		if len(cfg.Seeds) == 0 {
			add(cfg, "")
		}
		for _, s := range cfg.Seeds {
			add(cfg, strings.TrimSpace(s))
		}
	}
	for _, s := range seedList {
		if !utils.IsHTTP(s) {
			continue
		}
		add(r.Resolve(s), s)
	}
	return plans
}
