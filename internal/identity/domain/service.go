package domain

import (
	"context"
	"errors"
)

// CreateAccountRequest provisions a login-capable account for a new hire.
type CreateAccountRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	// ReferenceID correlates the call with the invitation for idempotent
	// retries on the identity side.
	ReferenceID string `json:"reference_id"`
}

type Account struct {
	SubjectID string `json:"subject_id"`
	// RequiresPasswordEmail is surfaced when the identity service decided a
	// follow-up password-set email is needed.
	RequiresPasswordEmail bool `json:"requires_password_email"`
}

// Actor is the resolved caller of an authenticated HR endpoint.
type Actor struct {
	SubjectID string `json:"subject_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type Service interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error)
	Introspect(ctx context.Context, bearerToken string) (*Actor, error)
}

var (
	// ErrUnavailable covers timeouts and 5xx answers; callers may retry.
	ErrUnavailable  = errors.New("identity_unavailable")
	ErrUnauthorized = errors.New("identity_unauthorized")
)
