package crawler

import (
	"net/url"
	"strings"

	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/extract"
)

// AccessoryPaths count as an include-keyword hit so accessory categories
// survive a narrow keyword list.
var AccessoryPaths = []string{
	"/accessor", "/controller", "/keyboard", "/mouse", "/mice", "/headset",
	"/headphone", "/audio", "/webcam", "/monitor", "/stands", "/mount", "/case",
	"/cooler", "/fans", "/cables", "/adapter", "/gaming-gear", "/peripherals",
}

// Keywords are run-wide include/exclude lists merged into every site's own.
type Keywords struct {
	Include []string `mapstructure:"include_keywords"`
	Exclude []string `mapstructure:"exclude_keywords"`
}

// Filter decides which URLs are fetched and which records are kept.
type Filter struct {
	include     []string
	exclude     []string
	pathInclude []string
	pathExclude []string
	price       domain.PriceFilter
}

func NewFilter(global Keywords, site domain.SiteConfig) *Filter {
	return &Filter{
		include:     foldAll(global.Include, site.IncludeKeywords),
		exclude:     foldAll(global.Exclude, site.ExcludeKeywords),
		pathInclude: lowerAll(site.PathInclude),
		pathExclude: lowerAll(site.PathExclude),
		price:       site.PriceFilter,
	}
}

func foldAll(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		for _, s := range l {
			if f := extract.Fold(s); f != "" {
				out = append(out, f)
			}
		}
	}
	return out
}

func lowerAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AllowURL applies the URL-path heuristics before a page is fetched.
func (f *Filter) AllowURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	if u.RawQuery != "" {
		p += "?" + strings.ToLower(u.RawQuery)
	}
	for _, x := range f.pathExclude {
		if strings.Contains(p, x) {
			return false
		}
	}
	if len(f.pathInclude) == 0 {
		return true
	}
	for _, x := range f.pathInclude {
		if strings.Contains(p, x) {
			return true
		}
	}
	return false
}

// AllowRecord applies keyword and price filters to an extracted record and
// returns the reason when it is dropped.
func (f *Filter) AllowRecord(rec domain.ProductRecord) (bool, string) {
	name := extract.Fold(rec.ProductName)
	link := strings.ToLower(rec.ProductURL)
	if dec, err := url.PathUnescape(link); err == nil {
		link = extract.Fold(dec)
	}
	matches := func(k string) bool { return strings.Contains(name, k) || strings.Contains(link, k) }

	for _, k := range f.exclude {
		if matches(k) {
			return false, "excluded keyword"
		}
	}

	if rec.PriceValue == nil {
		if f.price.Min != nil {
			return false, "no price"
		}
	} else {
		if f.price.Min != nil && *rec.PriceValue < *f.price.Min {
			return false, "below min price"
		}
		if f.price.Max != nil && *rec.PriceValue > *f.price.Max {
			return false, "above max price"
		}
	}

	if len(f.include) == 0 {
		return true, ""
	}
	for _, k := range f.include {
		if matches(k) {
			return true, ""
		}
	}
	for _, p := range AccessoryPaths {
		if strings.Contains(link, p) {
			return true, ""
		}
	}
	return false, "no include keyword"
}
