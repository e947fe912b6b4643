package transport

import (
	"errors"
	"fmt"
)

// ErrSessionExpired means the request could not be carried by a live
// session: no credentials, an expired credential that could not be
// renewed, or a renewal the provider rejected. Callers route this to
// the login flow, never to generic error handling.
var ErrSessionExpired = errors.New("session expired")

// ServerError reports a 5xx answer from the backend. It is distinct from
// ErrSessionExpired so a flaky backend never logs a user out.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// IsSessionExpired reports whether err (or anything it wraps) is the
// session-expired sentinel.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
