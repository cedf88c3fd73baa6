package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the provider. The status code drives the
// brain's fallback decision: rate limits and missing models move to the next
// model, everything else surfaces as-is.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API request failed: status=%d error=%s", e.Provider, e.Status, e.Message)
}

// IsModelFallback reports whether err should trigger a switch to the next
// fallback model: rate limiting, model not found, or provider unavailability.
func IsModelFallback(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusTooManyRequests, http.StatusNotFound,
			http.StatusServiceUnavailable, http.StatusBadGateway:
			return true
		}
		lower := strings.ToLower(apiErr.Message)
		return strings.Contains(lower, "model_not_found") ||
			strings.Contains(lower, "rate limit") ||
			strings.Contains(lower, "overloaded")
	}

	// Transport-level failures (connection refused, DNS) also justify a
	// fallback attempt; they are indistinguishable from an outage here.
	return true
}
