package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/humanline/humanline/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status         InvitationStatus
	Email          string
	DepartmentCode string
	InitiatedFrom  *time.Time
	InitiatedTo    *time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invitation *Invitation) error
	FindByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*Invitation, error)
	// FindActiveByEmail returns the non-terminal invitation for the email, or
	// nil. Expiry is derived state, so the caller decides what an expired row
	// means.
	FindActiveByEmail(ctx context.Context, db *gorm.DB, email string) (*Invitation, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Invitation, error)
	// Transition performs the atomic check-and-set that guards every status
	// mutation: the row is updated only while its status is still one of
	// from. It reports whether the update won the race. now stamps updated_at.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []InvitationStatus, to InvitationStatus, updates map[string]any, now time.Time) (bool, error)
}
