package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated matches failures caused by a missing or rejected
	// access token that could not be recovered.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRefreshRejected matches every refresh failure.
	ErrRefreshRejected = errors.New("refresh rejected")

	errMissingAccessToken = errors.New("refresh response carried no access token")
)

// RefreshError reports a failed refresh-token exchange. The session has
// already been cleared when it is returned.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refreshing session: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Is reports ErrRefreshRejected as a match in addition to the wrapped cause.
func (e *RefreshError) Is(target error) bool {
	return target == ErrRefreshRejected
}
