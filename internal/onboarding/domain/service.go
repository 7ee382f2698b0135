package domain

import (
	"context"
	"time"

	"github.com/humanline/humanline/pkg/db/pagination"
)

type InitiateRequest struct {
	Email             string     `json:"email"`
	Role              string     `json:"role"`
	JobTitle          string     `json:"job_title"`
	Department        string     `json:"department"`
	Team              string     `json:"team"`
	EmploymentType    string     `json:"employment_type"`
	Salary            int64      `json:"salary"`
	SalaryCurrency    string     `json:"salary_currency"`
	JoiningDate       time.Time  `json:"joining_date"`
	ProbationMonths   *int       `json:"probation_months"`
	ContractStartDate *time.Time `json:"contract_start_date"`
	ContractEndDate   *time.Time `json:"contract_end_date"`
}

type InitiateResponse struct {
	Invitation Invitation `json:"invitation"`
	// Token is returned exactly once; only its hash is persisted.
	Token     string `json:"token"`
	ClaimLink string `json:"claim_link"`
	// EmailDispatched is false when the invite mail could not be sent; the
	// invitation still exists and resend can retry.
	EmailDispatched bool `json:"email_dispatched"`
}

// Preview is the unauthenticated view of an invitation. It exposes only
// fields a prospective hire may see, plus validity flags.
type Preview struct {
	Email             string           `json:"email"`
	Role              string           `json:"role"`
	JobTitle          string           `json:"job_title"`
	Department        string           `json:"department,omitempty"`
	Team              string           `json:"team,omitempty"`
	EmploymentType    EmploymentType   `json:"employment_type"`
	Salary            int64            `json:"salary"`
	SalaryCurrency    string           `json:"salary_currency"`
	JoiningDate       time.Time        `json:"joining_date"`
	ContractStartDate *time.Time       `json:"contract_start_date,omitempty"`
	ContractEndDate   *time.Time       `json:"contract_end_date,omitempty"`
	Status            InvitationStatus `json:"status"`
	IsValid           bool             `json:"is_valid"`
	IsExpired         bool             `json:"is_expired"`
	ExpiresAt         time.Time        `json:"expires_at"`
}

type Step1Request struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

type Step1Response struct {
	SubjectID string           `json:"subject_id"`
	Status    InvitationStatus `json:"status"`
}

type Step2Request struct {
	DateOfBirth           *time.Time `json:"date_of_birth"`
	Gender                string     `json:"gender"`
	MaritalStatus         string     `json:"marital_status"`
	AddressLine1          string     `json:"address_line1"`
	AddressLine2          string     `json:"address_line2"`
	City                  string     `json:"city"`
	State                 string     `json:"state"`
	PostalCode            string     `json:"postal_code"`
	Country               string     `json:"country"`
	EmergencyContactName  string     `json:"emergency_contact_name"`
	EmergencyContactPhone string     `json:"emergency_contact_phone"`
	BankName              string     `json:"bank_name"`
	BankAccountNumber     string     `json:"bank_account_number"`
	BankRoutingCode       string     `json:"bank_routing_code"`
}

type Step2Response struct {
	EmployeeID            string           `json:"employee_id"`
	Status                InvitationStatus `json:"status"`
	CheckEmailForPassword bool             `json:"check_email_for_password"`
}

type ResendResponse struct {
	Status     InvitationStatus `json:"status"`
	Dispatched bool             `json:"dispatched"`
}

type ListRequest struct {
	pagination.Pagination
	Status        string
	Email         string
	Department    string
	InitiatedFrom *time.Time
	InitiatedTo   *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Invitations []Invitation `json:"invitations"`
}

type Service interface {
	Initiate(ctx context.Context, initiatorRole, initiatorID string, req InitiateRequest) (*InitiateResponse, error)
	Preview(ctx context.Context, token string) (*Preview, error)
	CompleteStep1(ctx context.Context, token string, req Step1Request) (*Step1Response, error)
	CompleteStep2(ctx context.Context, token string, req Step2Request) (*Step2Response, error)
	Resend(ctx context.Context, token string) (*ResendResponse, error)
	Cancel(ctx context.Context, token, reason string) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}
