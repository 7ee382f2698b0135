package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/humanline/humanline/internal/onboarding/domain"
	"github.com/humanline/humanline/pkg/db/option"
	"github.com/humanline/humanline/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invitation *domain.Invitation) error {
	return db.WithContext(ctx).Create(invitation).Error
}

func (r *repo) FindByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&invitation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invitation, nil
}

func (r *repo) FindActiveByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := db.WithContext(ctx).
		Where("email = ?", email).
		Where("status IN ?", statusStrings(domain.ActiveStatuses())).
		Order("created_at desc").
		First(&invitation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invitation, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Invitation, error) {
	var invitations []*domain.Invitation
	stmt := db.WithContext(ctx).Model(&domain.Invitation{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", string(filter.Status))
	}
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.DepartmentCode != "" {
		stmt = stmt.Where("department_code = ?", filter.DepartmentCode)
	}
	if filter.InitiatedFrom != nil {
		stmt = stmt.Where("initiated_at >= ?", *filter.InitiatedFrom)
	}
	if filter.InitiatedTo != nil {
		stmt = stmt.Where("initiated_at <= ?", *filter.InitiatedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&invitations).Error
	if err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.InvitationStatus, to domain.InvitationStatus, updates map[string]any, now time.Time) (bool, error) {
	values := map[string]any{
		"status":     string(to),
		"updated_at": now.UTC(),
	}
	for k, v := range updates {
		values[k] = v
	}

	result := db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("id = ?", id).
		Where("status IN ?", statusStrings(from)).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func statusStrings(statuses []domain.InvitationStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
