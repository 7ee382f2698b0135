package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/humanline/humanline/internal/clock"
	"github.com/humanline/humanline/internal/config"
	employeedomain "github.com/humanline/humanline/internal/employee/domain"
	identitydomain "github.com/humanline/humanline/internal/identity/domain"
	"github.com/humanline/humanline/internal/migration"
	"github.com/humanline/humanline/internal/onboarding/domain"
	"github.com/humanline/humanline/internal/onboarding/repository"
	dbpkg "github.com/humanline/humanline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// -- Fakes --

type fakeIdentity struct {
	createCalls int
	failCreate  bool
	subjectID   string
}

func (f *fakeIdentity) CreateAccount(ctx context.Context, req identitydomain.CreateAccountRequest) (*identitydomain.Account, error) {
	f.createCalls++
	if f.failCreate {
		return nil, identitydomain.ErrUnavailable
	}
	subjectID := f.subjectID
	if subjectID == "" {
		subjectID = "subject-1"
	}
	return &identitydomain.Account{SubjectID: subjectID, RequiresPasswordEmail: false}, nil
}

func (f *fakeIdentity) Introspect(ctx context.Context, bearerToken string) (*identitydomain.Actor, error) {
	return nil, identitydomain.ErrUnauthorized
}

type fakeEmployee struct {
	createCalls int
	failCreate  bool
	lastRequest employeedomain.CreateProfileRequest
}

func (f *fakeEmployee) CreateProfile(ctx context.Context, req employeedomain.CreateProfileRequest) (*employeedomain.Profile, error) {
	f.createCalls++
	f.lastRequest = req
	if f.failCreate {
		return nil, employeedomain.ErrUnavailable
	}
	return &employeedomain.Profile{EmployeeID: "employee-1"}, nil
}

type fakeEmail struct {
	mu        sync.Mutex
	sent      []string
	failSend  bool
	failTmpls map[string]bool
}

func (f *fakeEmail) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	return nil
}

func (f *fakeEmail) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend || f.failTmpls[templateName] {
		return errors.New("smtp unreachable")
	}
	f.sent = append(f.sent, templateName)
	return nil
}

// staleReadRepo simulates an initiator whose duplicate check ran before a
// concurrent insert landed.
type staleReadRepo struct {
	domain.Repository
}

func (staleReadRepo) FindActiveByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Invitation, error) {
	return nil, nil
}

type fixture struct {
	svc      domain.Service
	db       *gorm.DB
	repo     domain.Repository
	clock    *clock.FakeClock
	identity *fakeIdentity
	employee *fakeEmployee
	email    *fakeEmail
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Invitation{}))
	require.NoError(t, migration.EnsureActiveEmailIndex(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	identitySvc := &fakeIdentity{}
	employeeSvc := &fakeEmployee{}
	emailSvc := &fakeEmail{failTmpls: map[string]bool{}}
	repo := repository.Provide()

	svc := New(Params{
		Cfg: config.Config{
			AppName:          "humanline",
			ClaimLinkBaseURL: "https://app.humanline.test",
		},
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fc,
		Policy:   config.NewStaticPolicyHolder(config.DefaultOnboardingPolicy()),
		Repo:     repo,
		Identity: identitySvc,
		Employee: employeeSvc,
		Email:    emailSvc,
	})

	return &fixture{
		svc:      svc,
		db:       conn,
		repo:     repo,
		clock:    fc,
		identity: identitySvc,
		employee: employeeSvc,
		email:    emailSvc,
	}
}

func validInitiateRequest() domain.InitiateRequest {
	return domain.InitiateRequest{
		Email:          "jane.doe@example.com",
		Role:           "employee",
		JobTitle:       "Backend Engineer",
		Department:     "Engineering",
		Team:           "Platform",
		EmploymentType: "permanent",
		Salary:         90000,
		SalaryCurrency: "USD",
		JoiningDate:    time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) initiate(t *testing.T) *domain.InitiateResponse {
	t.Helper()
	resp, err := f.svc.Initiate(context.Background(), "HR_Admin", "admin-1", validInitiateRequest())
	require.NoError(t, err)
	return resp
}

func (f *fixture) reload(t *testing.T, tokenHash string) *domain.Invitation {
	t.Helper()
	inv, err := f.repo.FindByTokenHash(context.Background(), f.db, tokenHash)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

// -- Initiate --

func TestInitiatePermissionDenied(t *testing.T) {
	f := newFixture(t)

	req := validInitiateRequest()
	req.Role = "HR_Admin"
	_, err := f.svc.Initiate(context.Background(), "HR_Manager", "mgr-1", req)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.Initiate(context.Background(), "employee", "emp-1", validInitiateRequest())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestInitiateValidationReportsAllFields(t *testing.T) {
	f := newFixture(t)

	req := validInitiateRequest()
	req.Email = "not-an-email"
	req.JobTitle = ""
	req.Salary = 0
	req.SalaryCurrency = "US"

	_, err := f.svc.Initiate(context.Background(), "HR_Admin", "admin-1", req)

	var vErr *domain.ValidationErrors
	require.ErrorAs(t, err, &vErr)

	fields := map[string]bool{}
	for _, fe := range vErr.Errors {
		fields[fe.Field] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["job_title"])
	assert.True(t, fields["salary"])
	assert.True(t, fields["salary_currency"])
}

func TestInitiateContractRequiresDates(t *testing.T) {
	f := newFixture(t)

	req := validInitiateRequest()
	req.EmploymentType = "contract"

	_, err := f.svc.Initiate(context.Background(), "HR_Admin", "admin-1", req)

	var vErr *domain.ValidationErrors
	require.ErrorAs(t, err, &vErr)

	fields := map[string]bool{}
	for _, fe := range vErr.Errors {
		fields[fe.Field] = true
	}
	assert.True(t, fields["contract_start_date"])
	assert.True(t, fields["contract_end_date"])
}

func TestInitiateSuccess(t *testing.T) {
	f := newFixture(t)

	resp := f.initiate(t)

	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "https://app.humanline.test/onboarding/"+resp.Token, resp.ClaimLink)
	assert.True(t, resp.EmailDispatched)
	assert.Equal(t, domain.StatusInvitationSent, resp.Invitation.Status)
	assert.Equal(t, "engineering", resp.Invitation.DepartmentCode)
	assert.Equal(t, []string{"invitation"}, f.email.sent)

	stored := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, domain.StatusInvitationSent, stored.Status)
	assert.NotEqual(t, resp.Token, stored.TokenHash)
	assert.Equal(t, f.clock.Now().Add(168*time.Hour), stored.ExpiresAt.UTC())
}

func TestInitiateConflictOnActiveInvitation(t *testing.T) {
	f := newFixture(t)
	f.initiate(t)

	_, err := f.svc.Initiate(context.Background(), "HR_Admin", "admin-1", validInitiateRequest())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestInitiateAllowsReinviteAfterCancel(t *testing.T) {
	f := newFixture(t)
	first := f.initiate(t)

	require.NoError(t, f.svc.Cancel(context.Background(), first.Token, "role changed"))

	second, err := f.svc.Initiate(context.Background(), "HR_Admin", "admin-1", validInitiateRequest())
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestInitiateAfterExpiryRetiresStaleInvitation(t *testing.T) {
	f := newFixture(t)
	first := f.initiate(t)

	f.clock.Advance(169 * time.Hour)

	second, err := f.svc.Initiate(context.Background(), "HR_Admin", "admin-1", validInitiateRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvitationSent, second.Invitation.Status)

	old := f.reload(t, domain.HashToken(first.Token))
	assert.Equal(t, domain.StatusFailed, old.Status)
	assert.Equal(t, "expired", old.CancellationReason)
}

func TestInitiateDuplicateRaceLosesToUniqueIndex(t *testing.T) {
	f := newFixture(t)
	f.initiate(t)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	// Both initiators passed the duplicate check; the partial unique index
	// decides the race.
	raced := New(Params{
		Cfg: config.Config{
			AppName:          "humanline",
			ClaimLinkBaseURL: "https://app.humanline.test",
		},
		DB:       f.db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    f.clock,
		Policy:   config.NewStaticPolicyHolder(config.DefaultOnboardingPolicy()),
		Repo:     staleReadRepo{f.repo},
		Identity: f.identity,
		Employee: f.employee,
		Email:    f.email,
	})

	_, err = raced.Initiate(context.Background(), "HR_Admin", "admin-2", validInitiateRequest())
	assert.ErrorIs(t, err, domain.ErrConflict)

	var count int64
	require.NoError(t, f.db.Model(&domain.Invitation{}).
		Where("email = ?", "jane.doe@example.com").
		Where("status IN ?", []string{"initiated", "invitation_sent", "identity_created", "profile_created"}).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInitiateEmailFailureLeavesInvitationUsable(t *testing.T) {
	f := newFixture(t)
	f.email.failSend = true

	resp, err := f.svc.Initiate(context.Background(), "HR_Admin", "admin-1", validInitiateRequest())
	require.NoError(t, err)
	assert.False(t, resp.EmailDispatched)

	stored := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, domain.StatusInitiated, stored.Status)

	// Resend recovers once mail works again.
	f.email.failSend = false
	resend, err := f.svc.Resend(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.True(t, resend.Dispatched)
	assert.Equal(t, domain.StatusInvitationSent, resend.Status)
}

// -- Preview --

func TestPreviewValid(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	preview, err := f.svc.Preview(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.True(t, preview.IsValid)
	assert.False(t, preview.IsExpired)
	assert.Equal(t, "jane.doe@example.com", preview.Email)
	assert.Equal(t, int64(90000), preview.Salary)
}

func TestPreviewExpired(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	f.clock.Advance(169 * time.Hour)

	preview, err := f.svc.Preview(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.True(t, preview.IsExpired)
	assert.False(t, preview.IsValid)
}

func TestPreviewUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Preview(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// -- Step 1 --

func validStep1() domain.Step1Request {
	return domain.Step1Request{
		FirstName: "Jane",
		LastName:  "Doe",
		Phone:     "+15550100",
		Password:  "Str0ng!pass",
	}
}

func TestCompleteStep1Success(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	step1, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	require.NoError(t, err)
	assert.Equal(t, "subject-1", step1.SubjectID)
	assert.Equal(t, domain.StatusIdentityCreated, step1.Status)
	assert.Equal(t, 1, f.identity.createCalls)

	stored := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, domain.StatusIdentityCreated, stored.Status)
	assert.Equal(t, "subject-1", stored.SubjectID)
}

func TestCompleteStep1Idempotent(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	require.NoError(t, err)

	again, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	require.NoError(t, err)
	assert.Equal(t, "subject-1", again.SubjectID)
	assert.Equal(t, 1, f.identity.createCalls, "retry must not create a second identity")
}

func TestCompleteStep1Expired(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	f.clock.Advance(169 * time.Hour)

	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestCompleteStep1WeakPassword(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	req := validStep1()
	req.Password = "alllowercase"

	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, req)

	var vErr *domain.ValidationErrors
	require.ErrorAs(t, err, &vErr)

	codes := map[string]bool{}
	for _, fe := range vErr.Errors {
		codes[fe.Code] = true
	}
	assert.True(t, codes["missing_uppercase"])
	assert.True(t, codes["missing_digit"])
	assert.True(t, codes["missing_special"])
	assert.Equal(t, 0, f.identity.createCalls)
}

func TestCompleteStep1IdentityUnavailable(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)
	f.identity.failCreate = true

	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	stored := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, domain.StatusInvitationSent, stored.Status)

	f.identity.failCreate = false
	step1, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdentityCreated, step1.Status)
}

// -- Step 2 --

func TestCompleteStep2Success(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	require.NoError(t, err)

	step2, err := f.svc.CompleteStep2(context.Background(), resp.Token, domain.Step2Request{
		City:    "Berlin",
		Country: "DE",
	})
	require.NoError(t, err)
	assert.Equal(t, "employee-1", step2.EmployeeID)
	assert.Equal(t, domain.StatusCompleted, step2.Status)

	// HR-set fields are carried from the invitation, not the request.
	assert.Equal(t, "Backend Engineer", f.employee.lastRequest.JobTitle)
	assert.Equal(t, int64(90000), f.employee.lastRequest.Salary)
	assert.Equal(t, "subject-1", f.employee.lastRequest.SubjectID)

	assert.Contains(t, f.email.sent, "welcome")

	stored := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, "employee-1", stored.EmployeeID)
}

func TestCompleteStep2Idempotent(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	require.NoError(t, err)
	_, err = f.svc.CompleteStep2(context.Background(), resp.Token, domain.Step2Request{})
	require.NoError(t, err)

	again, err := f.svc.CompleteStep2(context.Background(), resp.Token, domain.Step2Request{})
	require.NoError(t, err)
	assert.Equal(t, "employee-1", again.EmployeeID)
	assert.Equal(t, domain.StatusCompleted, again.Status)
	assert.Equal(t, 1, f.employee.createCalls, "retry must not create a second profile")
}

func TestCompleteStep2BeforeStep1(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	_, err := f.svc.CompleteStep2(context.Background(), resp.Token, domain.Step2Request{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteStep2WelcomeMailFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	require.NoError(t, err)

	f.email.failTmpls["welcome"] = true
	_, err = f.svc.CompleteStep2(context.Background(), resp.Token, domain.Step2Request{})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	stored := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, domain.StatusProfileCreated, stored.Status)
	assert.Equal(t, "employee-1", stored.EmployeeID)

	// Retry resumes from the finalize step without re-creating the profile.
	f.email.failTmpls["welcome"] = false
	step2, err := f.svc.CompleteStep2(context.Background(), resp.Token, domain.Step2Request{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, step2.Status)
	assert.Equal(t, 1, f.employee.createCalls)
}

func TestCompleteStep2EmployeeUnavailable(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	require.NoError(t, err)

	f.employee.failCreate = true
	_, err = f.svc.CompleteStep2(context.Background(), resp.Token, domain.Step2Request{})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	stored := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, domain.StatusIdentityCreated, stored.Status)
}

// -- Resend / Cancel --

func TestResendAfterStep1IsInvalidState(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	require.NoError(t, err)

	_, err = f.svc.Resend(context.Background(), resp.Token)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestResendExpired(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	f.clock.Advance(169 * time.Hour)

	_, err := f.svc.Resend(context.Background(), resp.Token)
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestResendKeepsTokenAndExpiry(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)
	before := f.reload(t, domain.HashToken(resp.Token))

	_, err := f.svc.Resend(context.Background(), resp.Token)
	require.NoError(t, err)

	after := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, before.TokenHash, after.TokenHash)
	assert.Equal(t, before.ExpiresAt.UTC(), after.ExpiresAt.UTC())
}

func TestResendConcurrentCallsKeepStateStable(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)
	before := f.reload(t, domain.HashToken(resp.Token))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Resend(context.Background(), resp.Token)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	after := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, before.TokenHash, after.TokenHash)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.ExpiresAt.UTC(), after.ExpiresAt.UTC())
}

func TestCancelActiveInvitation(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	require.NoError(t, f.svc.Cancel(context.Background(), resp.Token, "position closed"))

	stored := f.reload(t, domain.HashToken(resp.Token))
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Equal(t, "position closed", stored.CancellationReason)

	// The claim link is dead from the hire's perspective.
	_, err := f.svc.CompleteStep1(context.Background(), resp.Token, validStep1())
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCancelTerminalInvitation(t *testing.T) {
	f := newFixture(t)
	resp := f.initiate(t)

	require.NoError(t, f.svc.Cancel(context.Background(), resp.Token, "first"))
	err := f.svc.Cancel(context.Background(), resp.Token, "second")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

// -- List --

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	first := f.initiate(t)

	second := validInitiateRequest()
	second.Email = "john.roe@example.com"
	secondResp, err := f.svc.Initiate(context.Background(), "HR_Admin", "admin-1", second)
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel(context.Background(), secondResp.Token, "dup"))

	resp, err := f.svc.List(context.Background(), domain.ListRequest{Status: "invitation_sent"})
	require.NoError(t, err)
	require.Len(t, resp.Invitations, 1)
	assert.Equal(t, first.Invitation.ID, resp.Invitations[0].ID)

	cancelled, err := f.svc.List(context.Background(), domain.ListRequest{Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, cancelled.Invitations, 1)
	assert.Equal(t, "john.roe@example.com", cancelled.Invitations[0].Email)
}

func TestListNeverExposesTokenHash(t *testing.T) {
	f := newFixture(t)
	f.initiate(t)

	resp, err := f.svc.List(context.Background(), domain.ListRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Invitations)

	encoded, err := json.Marshal(resp.Invitations[0])
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "token_hash")
	assert.NotContains(t, string(encoded), resp.Invitations[0].TokenHash)
}
