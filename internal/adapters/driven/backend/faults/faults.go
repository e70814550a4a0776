// Package faults maps HTTP and transport failures from model providers onto
// the domain error taxonomy, so every backend adapter reports the same kinds.
package faults

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tabula-labs/tabula/internal/core/domain"
)

// StatusOverloaded is Anthropic's "overloaded" status. It is treated as a
// rate limit.
const StatusOverloaded = 529

// maxMessage bounds provider messages copied into errors.
const maxMessage = 300

// KindForStatus returns the sentinel for a non-2xx HTTP status.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusPaymentRequired, status == http.StatusForbidden:
		return domain.ErrAuth
	case status == http.StatusTooManyRequests, status == StatusOverloaded:
		return domain.ErrRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return domain.ErrTimeout
	case status >= 500:
		return domain.ErrNetwork
	default:
		return domain.ErrProviderResponse
	}
}

// FromStatus builds the error for a failed HTTP exchange.
func FromStatus(provider domain.Provider, status int, retryAfter time.Duration, message string) error {
	return &domain.BackendError{
		Kind:       KindForStatus(status),
		Provider:   provider,
		StatusCode: status,
		RetryAfter: retryAfter,
		Message:    truncate(strings.TrimSpace(message)),
	}
}

// FromTransport builds the error for a request that got no HTTP response.
// Caller cancellation is passed through so the orchestrator can tell it
// apart from provider failures.
func FromTransport(provider domain.Provider, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := domain.ErrNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = domain.ErrTimeout
	}
	return &domain.BackendError{
		Kind:     kind,
		Provider: provider,
		Message:  truncate(err.Error()),
	}
}

// EmptyResponse reports a 2xx answer that carried no usable text.
func EmptyResponse(provider domain.Provider, status int) error {
	return &domain.BackendError{
		Kind:       domain.ErrProviderResponse,
		Provider:   provider,
		StatusCode: status,
		Message:    "no content returned",
	}
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as
// an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// truncate cuts s to at most maxMessage bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxMessage {
		return s
	}
	cut := maxMessage
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
