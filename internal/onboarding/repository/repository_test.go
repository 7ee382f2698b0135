package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/humanline/humanline/internal/migration"
	"github.com/humanline/humanline/internal/onboarding/domain"
	dbpkg "github.com/humanline/humanline/pkg/db"
	"github.com/humanline/humanline/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, domain.Repository, *snowflake.Node) {
	t.Helper()

	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Invitation{}))
	require.NoError(t, migration.EnsureActiveEmailIndex(conn))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	return conn, Provide(), node
}

func seedInvitation(t *testing.T, conn *gorm.DB, repo domain.Repository, node *snowflake.Node, status domain.InvitationStatus) *domain.Invitation {
	t.Helper()

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	inv := &domain.Invitation{
		ID:             node.Generate(),
		Email:          "jane.doe@example.com",
		TokenHash:      domain.HashToken(inv2Token(node)),
		Role:           "employee",
		JobTitle:       "Backend Engineer",
		EmploymentType: domain.EmploymentPermanent,
		Salary:         90000,
		SalaryCurrency: "USD",
		JoiningDate:    now.AddDate(0, 1, 0),
		Status:         status,
		InitiatedBy:    "admin-1",
		InitiatedAt:    now,
		ExpiresAt:      now.Add(168 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.Insert(context.Background(), conn, inv))
	return inv
}

func inv2Token(node *snowflake.Node) string {
	return "seed-token-" + node.Generate().String()
}

func TestTransitionWinsOnlyFromExpectedStatus(t *testing.T) {
	conn, repo, node := setup(t)
	inv := seedInvitation(t, conn, repo, node, domain.StatusInitiated)

	now := inv.InitiatedAt.Add(time.Minute)

	ok, err := repo.Transition(context.Background(), conn, inv.ID,
		[]domain.InvitationStatus{domain.StatusInitiated},
		domain.StatusInvitationSent, nil, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second attempt from the stale status loses.
	ok, err = repo.Transition(context.Background(), conn, inv.ID,
		[]domain.InvitationStatus{domain.StatusInitiated},
		domain.StatusInvitationSent, nil, now)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByTokenHash(context.Background(), conn, inv.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvitationSent, stored.Status)
}

func TestTransitionAppliesExtraUpdates(t *testing.T) {
	conn, repo, node := setup(t)
	inv := seedInvitation(t, conn, repo, node, domain.StatusInvitationSent)

	now := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

	ok, err := repo.Transition(context.Background(), conn, inv.ID,
		[]domain.InvitationStatus{domain.StatusInitiated, domain.StatusInvitationSent},
		domain.StatusIdentityCreated,
		map[string]any{"subject_id": "subject-9"}, now)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := repo.FindByTokenHash(context.Background(), conn, inv.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, "subject-9", stored.SubjectID)
	assert.Equal(t, domain.StatusIdentityCreated, stored.Status)
	// updated_at comes from the caller's clock, not the wall clock.
	assert.True(t, stored.UpdatedAt.UTC().Equal(now))
}

func TestFindActiveByEmailSkipsTerminal(t *testing.T) {
	conn, repo, node := setup(t)
	inv := seedInvitation(t, conn, repo, node, domain.StatusInvitationSent)

	active, err := repo.FindActiveByEmail(context.Background(), conn, inv.Email)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, inv.ID, active.ID)

	// Cancelled rows never block.
	ok, err := repo.Transition(context.Background(), conn, inv.ID,
		domain.ActiveStatuses(), domain.StatusCancelled, nil, inv.InitiatedAt.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	active, err = repo.FindActiveByEmail(context.Background(), conn, inv.Email)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestActiveEmailIndexRejectsSecondActiveRow(t *testing.T) {
	conn, repo, node := setup(t)
	inv := seedInvitation(t, conn, repo, node, domain.StatusInvitationSent)

	dup := *inv
	dup.ID = node.Generate()
	dup.TokenHash = domain.HashToken(inv2Token(node))
	dup.Status = domain.StatusInitiated

	err := repo.Insert(context.Background(), conn, &dup)
	require.Error(t, err)
	assert.True(t, dbpkg.IsDuplicateKeyErr(err))

	// Terminal rows release the slot.
	ok, err := repo.Transition(context.Background(), conn, inv.ID,
		domain.ActiveStatuses(), domain.StatusCancelled, nil, inv.InitiatedAt.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Insert(context.Background(), conn, &dup))
}

func TestListPaginatesWithCursor(t *testing.T) {
	conn, repo, node := setup(t)

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		inv := &domain.Invitation{
			ID:             node.Generate(),
			Email:          fmt.Sprintf("hire%d@example.com", i),
			TokenHash:      domain.HashToken(inv2Token(node)),
			Role:           "employee",
			JobTitle:       "Engineer",
			EmploymentType: domain.EmploymentPermanent,
			Salary:         1,
			SalaryCurrency: "USD",
			JoiningDate:    base,
			Status:         domain.StatusInitiated,
			InitiatedBy:    "admin-1",
			InitiatedAt:    created,
			ExpiresAt:      created.Add(168 * time.Hour),
			CreatedAt:      created,
			UpdatedAt:      created,
		}
		require.NoError(t, repo.Insert(context.Background(), conn, inv))
	}

	page, err := repo.List(context.Background(), conn, domain.ListFilter{}, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	// One extra row is fetched to detect the next page.
	require.Len(t, page, 3)

	// Newest first.
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	cursor, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        page[1].ID.String(),
		CreatedAt: page[1].CreatedAt.Format(time.RFC3339),
	})
	require.NoError(t, err)

	next, err := repo.List(context.Background(), conn, domain.ListFilter{}, pagination.Pagination{PageSize: 2, PageToken: cursor})
	require.NoError(t, err)
	require.NotEmpty(t, next)
	assert.True(t, next[0].CreatedAt.Before(page[1].CreatedAt))
}

func TestListRejectsMalformedPageToken(t *testing.T) {
	conn, repo, _ := setup(t)

	_, err := repo.List(context.Background(), conn, domain.ListFilter{},
		pagination.Pagination{PageSize: 2, PageToken: "%%not-a-cursor%%"})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
