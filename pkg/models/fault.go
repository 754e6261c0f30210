package models

import "fmt"

// ProviderError is a typed fault for non-2xx provider responses. The status
// code is what the error classifier keys on for rate-limit, auth, and server
// failures; the body snippet is kept for operator-facing error messages.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s api error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}
