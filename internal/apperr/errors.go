package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrSessionInvalid = errors.New("session invalid")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnavailable    = errors.New("service unavailable")
	ErrMissingTitle   = errors.New("missing title")
	ErrNoDocument     = errors.New("no document")
)

// StatusError is a non-2xx response from the remote platform.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return Describe(e.Status, e.Op)
}

// Unwrap returns the category sentinel for the status, if any.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden:
		return ErrSessionInvalid
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusConflict:
		return ErrConflict
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status >= 500:
		return ErrUnavailable
	}
	return nil
}

// Describe returns the user-facing message for a failed action.
func Describe(status int, action string) string {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return "Session expired or invalid. Please log in again."
	case status == http.StatusNotFound:
		return "Not found. The draft may have been deleted."
	case status == http.StatusTooManyRequests:
		return "Too many requests. Please wait a moment and try again."
	case status >= 500:
		return "Substack is temporarily unavailable. Please try again later."
	}
	return fmt.Sprintf("Failed to %s (error %d)", action, status)
}
