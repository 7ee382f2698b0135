package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type InvitationStatus string

const (
	StatusInitiated       InvitationStatus = "initiated"
	StatusInvitationSent  InvitationStatus = "invitation_sent"
	StatusIdentityCreated InvitationStatus = "identity_created"
	StatusProfileCreated  InvitationStatus = "profile_created"
	StatusCompleted       InvitationStatus = "completed"
	StatusFailed          InvitationStatus = "failed"
	StatusCancelled       InvitationStatus = "cancelled"
)

// transitions is the forward-only invitation status graph. Terminal states
// have no outgoing edges.
var transitions = map[InvitationStatus][]InvitationStatus{
	StatusInitiated:       {StatusInvitationSent, StatusIdentityCreated, StatusCancelled, StatusFailed},
	StatusInvitationSent:  {StatusIdentityCreated, StatusCancelled, StatusFailed},
	StatusIdentityCreated: {StatusProfileCreated, StatusCancelled, StatusFailed},
	StatusProfileCreated:  {StatusCompleted, StatusCancelled, StatusFailed},
}

func (s InvitationStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s InvitationStatus) CanTransitionTo(target InvitationStatus) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ActiveStatuses are the statuses counted against the one-live-invitation-
// per-email rule.
func ActiveStatuses() []InvitationStatus {
	return []InvitationStatus{
		StatusInitiated,
		StatusInvitationSent,
		StatusIdentityCreated,
		StatusProfileCreated,
	}
}

type EmploymentType string

const (
	EmploymentPermanent EmploymentType = "permanent"
	EmploymentContract  EmploymentType = "contract"
)

// Invitation tracks one onboarding attempt from HR initiation to completion.
// Records are never deleted; terminal rows stay for audit and duplicate
// checks.
type Invitation struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`

	Email string `gorm:"not null;index" json:"email"`

	// TokenHash is the sha256 of the claim token. The raw token is returned
	// once at initiation and never stored or logged in full.
	TokenHash string `gorm:"not null;uniqueIndex;column:token_hash" json:"-"`

	Role           string         `gorm:"not null" json:"role"`
	JobTitle       string         `gorm:"not null" json:"job_title"`
	Department     string         `json:"department,omitempty"`
	// DepartmentCode is the slugged department name, used for filtering.
	DepartmentCode string         `gorm:"index" json:"department_code,omitempty"`
	Team           string         `json:"team,omitempty"`
	EmploymentType EmploymentType `gorm:"not null" json:"employment_type"`
	Salary         int64          `gorm:"not null" json:"salary"`
	SalaryCurrency string         `gorm:"not null" json:"salary_currency"`
	JoiningDate    time.Time      `gorm:"not null" json:"joining_date"`

	ProbationMonths   *int       `json:"probation_months,omitempty"`
	ContractStartDate *time.Time `json:"contract_start_date,omitempty"`
	ContractEndDate   *time.Time `json:"contract_end_date,omitempty"`

	Status InvitationStatus `gorm:"not null;index" json:"status"`

	// SubjectID links the identity account once step1 succeeds; EmployeeID
	// links the profile once step2 succeeds. Both drive idempotent retries.
	SubjectID  string `json:"subject_id,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`

	CheckEmailForPassword bool `gorm:"not null;default:false" json:"check_email_for_password"`

	InitiatedBy        string `gorm:"not null" json:"initiated_by"`
	CancellationReason string `json:"cancellation_reason,omitempty"`

	InitiatedAt time.Time `gorm:"not null" json:"initiated_at"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Invitation) TableName() string {
	return "invitations"
}

// IsExpired is derived, never stored.
func (i Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
