package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// HashURL creates a SHA256 hash of the canonical form of a URL.
// Used as a compact, stable key in Redis and database rows.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(CanonURL(rawURL)))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL resolves ref against base. Unparseable input is returned
// trimmed but otherwise unchanged.
func ToAbsoluteURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	relURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil || base == "" {
		return relURL.String()
	}
	return baseURL.ResolveReference(relURL).String()
}

// CanonURL is the dedup key form of a URL: fragment dropped, scheme and host
// lowercased, query kept, trailing slash trimmed.
func CanonURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.TrimRight(rawURL, "/")
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// Host returns the lowercased host of rawURL without a leading "www.".
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// IsHTTP reports whether rawURL is an absolute http(s) URL.
func IsHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
