package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrMissingIdentity is returned when a record lacks its contract address or token ID
	ErrMissingIdentity = errors.New("record is missing contract address or token id")

	// ErrShapeMismatch is returned when a provider payload does not match the expected shape
	ErrShapeMismatch = errors.New("provider payload shape mismatch")

	// ErrCountUnavailable is returned by providers that expose no owned-count endpoint
	ErrCountUnavailable = errors.New("owned count unavailable for this provider")

	// ErrMissingCredentials is returned when a provider client is constructed without credentials
	ErrMissingCredentials = errors.New("missing provider credentials")
)

// ProviderError wraps a non-OK provider HTTP response so callers can classify
// it structurally instead of parsing messages
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// rate-limit message patterns used as a fallback when the status code is lost
// inside wrapped errors from upstream SDKs
var rateLimitPatterns = []string{
	"429",
	"rate limit",
	"rate-limit",
	"too many requests",
	"throttle",
}

// IsRateLimited classifies an error as upstream throttling. A typed
// ProviderError with status 429 wins; otherwise the message is pattern-matched.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode == http.StatusTooManyRequests
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
