package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/florianilch/vidclient/internal/session"
)

// ErrUnreachable matches failures where no response was received.
var ErrUnreachable = errors.New("backend unreachable")

// APIError is a response with a non-2xx status.
type APIError struct {
	StatusCode int
	// Message is the server-supplied explanation, if any.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is reports a 401 as session.ErrNotAuthenticated.
func (e *APIError) Is(target error) bool {
	return target == session.ErrNotAuthenticated && e.StatusCode == http.StatusUnauthorized
}

// NetworkError wraps a transport failure: connection errors and timeouts.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("no response from backend: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports ErrUnreachable as a match in addition to the wrapped cause.
func (e *NetworkError) Is(target error) bool {
	return target == ErrUnreachable
}

// ErrorMessage turns err into a string suitable for showing to a user.
// A server-supplied message wins; otherwise the message says whether the
// server could be reached at all.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}

	if errors.Is(err, ErrUnreachable) {
		return fallback + ": can't reach the server. Check the API base URL and that the backend is running."
	}

	if apiErr != nil {
		return fmt.Sprintf("%s (HTTP %d)", fallback, apiErr.StatusCode)
	}

	return fallback
}
