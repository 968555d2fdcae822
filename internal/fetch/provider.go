package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/user/catalog-crawler/internal/domain"
	"go.uber.org/zap"
)

// DefaultEndpoints are the public API roots of the supported providers.
var DefaultEndpoints = map[domain.ProviderName]string{
	domain.ProviderScrapingBee: "https://app.scrapingbee.com/api/v1/",
	domain.ProviderScraperAPI:  "https://api.scraperapi.com/",
	domain.ProviderZyte:        "https://api.zyte.com/v1/extract",
}

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 16 << 20

// ProviderFetcher fetches pages through a remote unblocking service.
type ProviderFetcher struct {
	client    *http.Client
	creds     CredentialSource
	endpoints map[domain.ProviderName]string
	logger    *zap.Logger
	warned    sync.Map
}

// NewProviderFetcher builds a provider fetcher. Endpoints missing from
// endpoints use DefaultEndpoints.
func NewProviderFetcher(client *http.Client, creds CredentialSource, endpoints map[domain.ProviderName]string, logger *zap.Logger) *ProviderFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if creds == nil {
		creds = EnvCredentials{}
	}
	merged := make(map[domain.ProviderName]string, len(DefaultEndpoints))
	for k, v := range DefaultEndpoints {
		merged[k] = v
	}
	for k, v := range endpoints {
		merged[k] = v
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderFetcher{client: client, creds: creds, endpoints: merged, logger: logger}
}

func (p *ProviderFetcher) Fetch(ctx context.Context, rawURL string, site domain.SiteConfig) (Page, error) {
	desc := site.Provider
	if desc == nil {
		return Page{}, fmt.Errorf("%w: none configured", ErrUnknownProvider)
	}
	if !desc.Name.Valid() {
		return Page{}, fmt.Errorf("%w: %q", ErrUnknownProvider, desc.Name)
	}
	key, ok := p.creds.Lookup(desc.KeyEnv)
	if !ok {
		if _, seen := p.warned.LoadOrStore(desc.KeyEnv, struct{}{}); !seen {
			p.logger.Warn("provider credential not set, falling back",
				zap.String("provider", string(desc.Name)),
				zap.String("key_env", desc.KeyEnv),
			)
		}
		return Page{}, fmt.Errorf("%w: %s", ErrMissingCredential, desc.KeyEnv)
	}

	var (
		req *http.Request
		err error
	)
	switch desc.Name {
	case domain.ProviderScrapingBee:
		req, err = p.getRequest(ctx, desc.Name, url.Values{
			"api_key":      {key},
			"url":          {rawURL},
			"render_js":    {strconv.FormatBool(desc.RenderJS)},
			"country_code": {desc.Geo},
		})
	case domain.ProviderScraperAPI:
		req, err = p.getRequest(ctx, desc.Name, url.Values{
			"api_key":      {key},
			"url":          {rawURL},
			"render":       {strconv.FormatBool(desc.RenderJS)},
			"country_code": {desc.Geo},
		})
	case domain.ProviderZyte:
		req, err = p.zyteRequest(ctx, key, rawURL, desc)
	}
	if err != nil {
		return Page{}, fmt.Errorf("build %s request: %w", desc.Name, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("%s request: %w", desc.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{StatusCode: resp.StatusCode}, fmt.Errorf("read %s response: %w", desc.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{StatusCode: resp.StatusCode}, &StatusError{Code: resp.StatusCode}
	}
	if desc.Name == domain.ProviderZyte {
		return decodeZyte(body)
	}
	return Page{HTML: string(body), StatusCode: resp.StatusCode}, nil
}

func (p *ProviderFetcher) getRequest(ctx context.Context, name domain.ProviderName, q url.Values) (*http.Request, error) {
	if q.Get("country_code") == "" {
		q.Del("country_code")
	}
	endpoint, err := url.Parse(p.endpoints[name])
	if err != nil {
		return nil, err
	}
	endpoint.RawQuery = q.Encode()
	return http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
}

type zyteRequest struct {
	URL              string `json:"url"`
	BrowserHTML      bool   `json:"browserHtml,omitempty"`
	HTTPResponseBody bool   `json:"httpResponseBody,omitempty"`
	Geolocation      string `json:"geolocation,omitempty"`
}

type zyteResponse struct {
	URL              string `json:"url"`
	StatusCode       int    `json:"statusCode"`
	BrowserHTML      string `json:"browserHtml"`
	HTTPResponseBody string `json:"httpResponseBody"`
}

func (p *ProviderFetcher) zyteRequest(ctx context.Context, key, rawURL string, desc *domain.ProviderDescriptor) (*http.Request, error) {
	payload, err := json.Marshal(zyteRequest{
		URL:              rawURL,
		BrowserHTML:      desc.RenderJS,
		HTTPResponseBody: !desc.RenderJS,
		Geolocation:      desc.Geo,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoints[domain.ProviderZyte], bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(key, "")
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// decodeZyte unwraps the extract API envelope. The target's own status is
// reported, not the API's.
func decodeZyte(body []byte) (Page, error) {
	var zr zyteResponse
	if err := json.Unmarshal(body, &zr); err != nil {
		return Page{}, fmt.Errorf("decode zyte response: %w", err)
	}
	page := Page{StatusCode: zr.StatusCode, HTML: zr.BrowserHTML}
	if page.HTML == "" && zr.HTTPResponseBody != "" {
		raw, err := base64.StdEncoding.DecodeString(zr.HTTPResponseBody)
		if err != nil {
			return page, fmt.Errorf("decode zyte body: %w", err)
		}
		page.HTML = string(raw)
	}
	return page, nil
}
