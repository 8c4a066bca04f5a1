// file: internal/api/errors.go
// version: 1.0.0
// guid: 5372a8af-b6bd-425c-93f2-b3a7d67e60d6

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jdfalk/filesync/internal/account"
)

var (
	// ErrUnauthorized signals a rejected or expired token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound signals a missing repo or path.
	ErrNotFound = errors.New("not found")
)

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 512

// Error is a non-2xx answer from the server.
type Error struct {
	Status int
	Body   string
}

func newError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &Error{
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Body)
}

// Unwrap maps well-known statuses onto the package sentinels so callers can
// use errors.Is.
func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// IsPermanent reports whether retrying the same request is pointless.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, account.ErrInvalid)
}
