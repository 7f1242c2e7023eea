package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned without any I/O when no credential is
	// stored. The gateway never starts authentication itself.
	ErrNotAuthenticated = errors.New("no auth credential")

	// ErrNetwork wraps transport failures (dial, timeout, reset).
	ErrNetwork = errors.New("network error")

	// ErrRemote is wrapped by every APIError.
	ErrRemote = errors.New("remote cart error")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

const genericFailureMessage = "Request failed"

// APIError is a non-2xx answer from the cart API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrRemote
}
