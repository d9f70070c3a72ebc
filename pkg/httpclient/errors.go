package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether the error is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsTransient reports whether the error is worth retrying at a higher
// level (429 or 5xx).
func IsTransient(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return retryable(se.StatusCode)
}
