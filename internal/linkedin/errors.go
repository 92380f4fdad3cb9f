package linkedin

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means the client has no stored LinkedIn token.
	ErrNotConnected = errors.New("linkedin account not connected")
	// ErrTokenExpired means the access token expired and cannot be refreshed.
	ErrTokenExpired = errors.New("linkedin token expired")
	// ErrInvalidState is returned for a tampered, malformed or stale OAuth state.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrInvalidSignature is returned when a webhook signature does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// APIError is a non-2xx response from LinkedIn.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("linkedin api status %d: %s", e.Status, e.Message)
}

// NeedsReconnect reports whether err can only be fixed by the user
// authorizing the account again.
func NeedsReconnect(err error) bool {
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrTokenExpired) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 401
}
