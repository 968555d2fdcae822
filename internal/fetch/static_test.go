package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/internal/proxy"
	"go.uber.org/zap"
)

func TestStaticFetcher_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent/1.0", r.UserAgent())
		assert.Equal(t, "en-US,en;q=0.9,ar;q=0.8", r.Header.Get("Accept-Language"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		fmt.Fprint(w, okHTML)
	}))
	defer ts.Close()

	f := NewStaticFetcher(proxy.NewManager(nil, []string{"test-agent/1.0"}), zap.NewNop())
	page, err := f.Fetch(context.Background(), ts.URL+"/list", domain.SiteConfig{})

	require.NoError(t, err)
	assert.Equal(t, 200, page.StatusCode)
	assert.Equal(t, okHTML, page.HTML)
}

func TestStaticFetcher_BlockedThroughAcquirer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "<html>Access denied</html>")
	}))
	defer ts.Close()

	f := NewStaticFetcher(proxy.NewManager(nil, nil), zap.NewNop())
	page, err := f.Fetch(context.Background(), ts.URL, domain.SiteConfig{})
	require.NoError(t, err)
	assert.Equal(t, 403, page.StatusCode)
	assert.True(t, errors.Is(checkPage(page), ErrBlocked))

	a := NewAcquirer(zap.NewNop(), WithStatic(f))
	res := a.Acquire(context.Background(), ts.URL, domain.SiteConfig{StaticHint: true})
	assert.False(t, res.Success)
	assert.Equal(t, 403, res.StatusCode)
	assert.Equal(t, []string{"static: http status 403"}, res.Notes)
}

func TestStaticFetcher_ConnectionError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	f := NewStaticFetcher(proxy.NewManager(nil, nil), zap.NewNop())
	_, err := f.Fetch(context.Background(), url, domain.SiteConfig{})
	assert.Error(t, err)
}

func TestStaticFetcher_RetriesServerErrorOnce(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, okHTML)
	}))
	defer ts.Close()

	f := NewStaticFetcher(proxy.NewManager(nil, nil), zap.NewNop())
	page, err := f.Fetch(context.Background(), ts.URL, domain.SiteConfig{})

	require.NoError(t, err)
	assert.Equal(t, 200, page.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestStaticFetcher_DoesNotRetryBlocked(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	f := NewStaticFetcher(proxy.NewManager(nil, nil), zap.NewNop())
	page, err := f.Fetch(context.Background(), ts.URL, domain.SiteConfig{})

	require.NoError(t, err)
	assert.Equal(t, 429, page.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}
