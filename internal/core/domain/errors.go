package domain

import "fmt"

// ProviderError carries a user-presentable message from an upstream provider
// response. The overlay shows Message verbatim when present.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (HTTP %d): %s", e.StatusCode, e.Message)
}
