package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DefaultCurrency is used whenever no currency marker is found in the price text.
const DefaultCurrency = "EGP"

// ProviderName identifies a remote unblocking/fetching service.
type ProviderName string

const (
	ProviderScrapingBee ProviderName = "scrapingbee"
	ProviderScraperAPI  ProviderName = "scraperapi"
	ProviderZyte        ProviderName = "zyte"
)

// Valid reports whether the name is one of the supported providers.
func (n ProviderName) Valid() bool {
	switch n {
	case ProviderScrapingBee, ProviderScraperAPI, ProviderZyte:
		return true
	}
	return false
}

// ProviderDescriptor configures a provider fetch for one site. KeyEnv is the
// name of the credential, never the credential itself.
type ProviderDescriptor struct {
	Name      ProviderName `mapstructure:"name" json:"name"`
	KeyEnv    string       `mapstructure:"key_env" json:"key_env"`
	Geo       string       `mapstructure:"geo" json:"geo,omitempty"`
	RenderJS  bool         `mapstructure:"render_js" json:"render_js"`
	TimeoutMS int          `mapstructure:"timeout_ms" json:"timeout_ms,omitempty"`
}

// Timeout returns the configured provider timeout, or fallback when unset.
func (p ProviderDescriptor) Timeout(fallback time.Duration) time.Duration {
	if p.TimeoutMS <= 0 {
		return fallback
	}
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Selectors holds per-domain CSS selector overrides. Every list is tried in order.
type Selectors struct {
	Card         []string `mapstructure:"product_card" json:"product_card,omitempty"`
	Name         []string `mapstructure:"name" json:"name,omitempty"`
	Price        []string `mapstructure:"price" json:"price,omitempty"`
	Availability []string `mapstructure:"availability" json:"availability,omitempty"`
	SKU          []string `mapstructure:"sku" json:"sku,omitempty"`
	URL          []string `mapstructure:"url" json:"url,omitempty"`
	NextPage     []string `mapstructure:"next_page" json:"next_page,omitempty"`
}

// PriceFilter drops records outside [Min, Max]. Nil bounds are open.
type PriceFilter struct {
	Min *float64 `mapstructure:"min" json:"min,omitempty"`
	Max *float64 `mapstructure:"max" json:"max,omitempty"`
}

// SiteConfig is the immutable per-domain crawl configuration.
type SiteConfig struct {
	Domain           string              `mapstructure:"domain" json:"domain"`
	Name             string              `mapstructure:"name" json:"name,omitempty"`
	Seeds            []string            `mapstructure:"seeds" json:"seeds,omitempty"`
	IncludeKeywords  []string            `mapstructure:"include_keywords" json:"include_keywords,omitempty"`
	ExcludeKeywords  []string            `mapstructure:"exclude_keywords" json:"exclude_keywords,omitempty"`
	PathInclude      []string            `mapstructure:"path_include" json:"path_include,omitempty"`
	PathExclude      []string            `mapstructure:"path_exclude" json:"path_exclude,omitempty"`
	Selectors        Selectors           `mapstructure:"overrides" json:"overrides"`
	Provider         *ProviderDescriptor `mapstructure:"provider" json:"provider,omitempty"`
	StaticHint       bool                `mapstructure:"static" json:"static"`
	Limit            int                 `mapstructure:"limit" json:"limit"`
	MaxPages         int                 `mapstructure:"per_site_pages" json:"per_site_pages"`
	Sitemaps         []string            `mapstructure:"sitemaps" json:"sitemaps,omitempty"`
	DiscoverSitemaps bool                `mapstructure:"discover_sitemaps" json:"discover_sitemaps"`
	PriceFilter      PriceFilter         `mapstructure:"price_filter" json:"price_filter"`
	StaticTimeout    time.Duration       `mapstructure:"static_timeout" json:"static_timeout"`
	RenderTimeout    time.Duration       `mapstructure:"render_timeout" json:"render_timeout"`
	Delay            time.Duration       `mapstructure:"delay" json:"delay"`
}

// Label is the site_name written into records.
func (s SiteConfig) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Domain
}

// FetchMethod names the acquisition strategy that produced a page.
type FetchMethod string

const (
	MethodStatic FetchMethod = "static"
	MethodRender FetchMethod = "render"
	MethodNone   FetchMethod = "none"
)

// ProviderMethod returns the method label for a provider fetch.
func ProviderMethod(name ProviderName) FetchMethod {
	return FetchMethod("provider:" + string(name))
}

// FetchResult is the outcome of acquiring one URL. Notes holds the failure
// trail of every attempt made before (and including) the returned one.
type FetchResult struct {
	URL        string
	HTML       string
	Method     FetchMethod
	Success    bool
	StatusCode int
	Notes      []string
}

// Note joins the failure trail into a single string.
func (r FetchResult) Note() string {
	return strings.Join(r.Notes, "; ")
}

// Status is the tri-state availability of a product.
type Status string

const (
	StatusAvailable  Status = "Available"
	StatusOutOfStock Status = "Out of Stock"
	StatusUnknown    Status = "Unknown"
)

// RecordFields is the fixed output field order.
var RecordFields = []string{
	"timestamp_iso",
	"site_name",
	"product_name",
	"sku",
	"product_url",
	"status",
	"price_value",
	"currency",
	"raw_price_text",
	"source_url",
	"notes",
}

// ProductRecord is the durable output unit.
type ProductRecord struct {
	Timestamp    time.Time
	SiteName     string
	ProductName  string
	SKU          string
	ProductURL   string
	Status       Status
	PriceValue   *float64
	Currency     string
	RawPriceText string
	SourceURL    string
	Notes        string
}

// PriceString renders the price value, or "" when absent.
func (r ProductRecord) PriceString() string {
	if r.PriceValue == nil {
		return ""
	}
	return strconv.FormatFloat(*r.PriceValue, 'f', -1, 64)
}

// Row returns the record as tabular cells in RecordFields order.
func (r ProductRecord) Row() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.SiteName,
		r.ProductName,
		r.SKU,
		r.ProductURL,
		string(r.Status),
		r.PriceString(),
		r.Currency,
		r.RawPriceText,
		r.SourceURL,
		r.Notes,
	}
}

// MarshalJSON writes the fields in RecordFields order. Absent values are
// written as "" so line-oriented and tabular consumers never see null.
func (r ProductRecord) MarshalJSON() ([]byte, error) {
	row := r.Row()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range RecordFields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(field))
		buf.WriteByte(':')
		if field == "price_value" && r.PriceValue != nil {
			buf.WriteString(row[i])
			continue
		}
		if err := writeJSONString(&buf, row[i]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode always terminates with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// RunSummary reports per-site outcomes of a crawl run.
type RunSummary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Sites    map[string]SiteSummary
}

// SiteSummary is the final state of one site in a run.
type SiteSummary struct {
	Emitted     int    `json:"emitted"`
	Pages       int    `json:"pages"`
	FailedPages int    `json:"failed_pages"`
	State       string `json:"state"`
	DoneReason  string `json:"done_reason,omitempty"`
}
