package domain

import (
	"context"
	"errors"
	"time"
)

// CreateProfileRequest creates the employee record for an onboarded hire.
// Role and compensation fields come from the invitation, never from the
// hire's own payload.
type CreateProfileRequest struct {
	SubjectID string `json:"subject_id"`
	Email     string `json:"email"`

	Role           string    `json:"role"`
	JobTitle       string    `json:"job_title"`
	Department     string    `json:"department,omitempty"`
	Team           string    `json:"team,omitempty"`
	EmploymentType string    `json:"employment_type"`
	Salary         int64     `json:"salary"`
	SalaryCurrency string    `json:"salary_currency"`
	JoiningDate    time.Time `json:"joining_date"`

	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	Gender        string     `json:"gender,omitempty"`
	MaritalStatus string     `json:"marital_status,omitempty"`

	AddressLine1 string `json:"address_line1,omitempty"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country,omitempty"`

	EmergencyContactName  string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty"`

	BankName          string `json:"bank_name,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
	BankRoutingCode   string `json:"bank_routing_code,omitempty"`

	ReferenceID string `json:"reference_id"`
}

type Profile struct {
	EmployeeID string `json:"employee_id"`
}

type Service interface {
	CreateProfile(ctx context.Context, req CreateProfileRequest) (*Profile, error)
}

// ErrUnavailable covers timeouts and 5xx answers; callers may retry.
var ErrUnavailable = errors.New("employee_unavailable")
