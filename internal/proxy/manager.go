package proxy

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// DefaultUserAgents are desktop browser identities used when none are configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// Manager handles the rotation of proxies and user agents.
type Manager struct {
	proxies    []string
	userAgents []string
	mu         sync.Mutex
	proxyIndex int
}

// NewManager builds a manager over the given proxy URLs and user agents.
// Blank entries are ignored; an empty agent list falls back to DefaultUserAgents.
func NewManager(proxies, userAgents []string) *Manager {
	m := &Manager{
		proxies:    compact(proxies),
		userAgents: compact(userAgents),
	}
	if len(m.userAgents) == 0 {
		m.userAgents = DefaultUserAgents
	}
	return m
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GetProxy returns a proxy URL from the list, rotating sequentially.
func (m *Manager) GetProxy() string {
	if m == nil || len(m.proxies) == 0 {
		return "" // No proxy
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	proxy := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return proxy
}

// GetUserAgent returns a random user agent string.
func (m *Manager) GetUserAgent() string {
	if m == nil || len(m.userAgents) == 0 {
		return DefaultUserAgents[0]
	}
	return m.userAgents[rand.IntN(len(m.userAgents))]
}

// BrowserHeaders are sent with every static request next to the user agent.
func BrowserHeaders() map[string]string {
	return map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9,ar;q=0.8",
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
	}
}
