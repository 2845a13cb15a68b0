package jira

import (
	"errors"
	"fmt"
	"net/http"

	gojira "github.com/andygrunwald/go-jira"
)

// Error is returned by every Client call that reached (or tried to reach)
// Jira. StatusCode is zero when no HTTP response was received.
type Error struct {
	Op         string
	Key        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Key != "" {
		if e.StatusCode != 0 {
			return fmt.Sprintf("jira %s %s (HTTP %d): %v", e.Op, e.Key, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("jira %s %s: %v", e.Op, e.Key, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("jira %s (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("jira %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op, key string, resp *gojira.Response, err error) error {
	e := &Error{Op: op, Key: key, Err: err}
	if resp != nil && resp.Response != nil {
		e.StatusCode = resp.StatusCode
	}
	return e
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var je *Error
	if errors.As(err, &je) {
		return je.StatusCode
	}
	return 0
}

// IsNotFound reports a 404: the issue does not exist or is not visible to
// the configured credentials.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsAuth reports a 401 or 403.
func IsAuth(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
