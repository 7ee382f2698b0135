package domain

import (
	"errors"

	"github.com/humanline/humanline/pkg/db/pagination"
)

var (
	ErrPermissionDenied    = errors.New("permission_denied")
	ErrNotFound            = errors.New("not_found")
	ErrExpired             = errors.New("expired")
	ErrInvalidState        = errors.New("invalid_state")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")

	// ErrInvalidPageToken is the sentinel the pagination layer attaches to a
	// query when the cursor cannot be decoded.
	ErrInvalidPageToken = pagination.ErrInvalidPageToken
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors carries every violated field so the caller can correct
// the payload in a single round trip.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	return "validation error"
}

func (v *ValidationErrors) Add(field, code, message string) {
	v.Errors = append(v.Errors, FieldError{Field: field, Code: code, Message: message})
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}
