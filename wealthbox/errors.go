// ABOUTME: Error taxonomy for the Wealthbox API client
// ABOUTME: Sentinels for config, auth, rate limit, availability, and not found, plus APIError for other statuses
package wealthbox

import (
	"errors"
	"fmt"
)

var (
	ErrConfig             = errors.New("wealthbox: missing configuration")
	ErrInvalidCredentials = errors.New("wealthbox: invalid API credentials")
	ErrRateLimited        = errors.New("wealthbox: rate limited")
	ErrRemoteUnavailable  = errors.New("wealthbox: remote unavailable")
	ErrNotFound           = errors.New("wealthbox: not found")
)

// APIError is returned for non-2xx responses that have no dedicated sentinel.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("wealthbox: %s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("wealthbox: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
