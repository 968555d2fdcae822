package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrBlocked is returned for responses that signal anti-bot blocking or
	// rate limiting (403, 429).
	ErrBlocked = errors.New("blocked by target")
	// ErrEmptyBody is returned when a 2xx response carries no content.
	ErrEmptyBody = errors.New("empty body")
	// ErrMissingCredential is returned when a provider key cannot be resolved.
	ErrMissingCredential = errors.New("missing provider credential")
	// ErrUnknownProvider is returned for provider names outside the supported set.
	ErrUnknownProvider = errors.New("unknown provider")
)

// StatusError reports a non-2xx HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// Unwrap lets errors.Is(err, ErrBlocked) match blocking statuses.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusForbidden || e.Code == http.StatusTooManyRequests {
		return ErrBlocked
	}
	return nil
}

// checkPage turns a fetched page into an error when it cannot be used.
func checkPage(p Page) error {
	if p.StatusCode != 0 && (p.StatusCode < 200 || p.StatusCode > 299) {
		return &StatusError{Code: p.StatusCode}
	}
	if strings.TrimSpace(p.HTML) == "" {
		return ErrEmptyBody
	}
	return nil
}
