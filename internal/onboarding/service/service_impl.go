package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/humanline/humanline/internal/audit/domain"
	"github.com/humanline/humanline/internal/audit/masking"
	"github.com/humanline/humanline/internal/clock"
	"github.com/humanline/humanline/internal/config"
	employeedomain "github.com/humanline/humanline/internal/employee/domain"
	identitydomain "github.com/humanline/humanline/internal/identity/domain"
	"github.com/humanline/humanline/internal/observability/metrics"
	"github.com/humanline/humanline/internal/onboarding/domain"
	"github.com/humanline/humanline/internal/providers/email"
	dbpkg "github.com/humanline/humanline/pkg/db"
	"github.com/humanline/humanline/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	actionInitiate = "invitation.initiate"
	actionStep1    = "invitation.step1"
	actionStep2    = "invitation.step2"
	actionResend   = "invitation.resend"
	actionCancel   = "invitation.cancel"

	targetTypeInvitation = "invitation"
)

type Params struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   *config.OnboardingPolicyHolder
	Repo     domain.Repository
	Identity identitydomain.Service
	Employee employeedomain.Service
	Email    email.Provider
	Audit    auditdomain.Service
	Metrics  *metrics.OnboardingMetrics `optional:"true"`
}

type Service struct {
	cfg      config.Config
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	policy   *config.OnboardingPolicyHolder
	repo     domain.Repository
	identity identitydomain.Service
	employee employeedomain.Service
	email    email.Provider
	audit    auditdomain.Service
	metrics  *metrics.OnboardingMetrics
}

func New(p Params) domain.Service {
	return &Service{
		cfg:      p.Cfg,
		db:       p.DB,
		log:      p.Log.Named("onboarding.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		repo:     p.Repo,
		identity: p.Identity,
		employee: p.Employee,
		email:    p.Email,
		audit:    p.Audit,
		metrics:  p.Metrics,
	}
}

func (s *Service) Initiate(ctx context.Context, initiatorRole, initiatorID string, req domain.InitiateRequest) (*domain.InitiateResponse, error) {
	policy := s.policy.Get()

	role := strings.TrimSpace(req.Role)
	if !policy.CanAssign(strings.TrimSpace(initiatorRole), role) {
		s.recordRejection("initiate", "permission_denied")
		return nil, domain.ErrPermissionDenied
	}

	if vErr := validateInitiate(req); vErr != nil {
		s.recordRejection("initiate", "validation_error")
		return nil, vErr
	}

	now := s.clock.Now()
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.repo.FindActiveByEmail(ctx, s.db, emailAddr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.IsExpired(now) {
			s.recordRejection("initiate", "conflict")
			return nil, domain.ErrConflict
		}
		// The previous attempt ran out of time. Retire it so the partial
		// unique index accepts a fresh row for this email.
		ok, err := s.repo.Transition(ctx, s.db, existing.ID,
			domain.ActiveStatuses(),
			domain.StatusFailed,
			map[string]any{"cancellation_reason": "expired"}, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.recordRejection("initiate", "conflict")
			return nil, domain.ErrConflict
		}
		s.recordTransition(domain.StatusFailed)
	}

	rawToken, err := domain.NewToken()
	if err != nil {
		return nil, err
	}

	department := strings.TrimSpace(req.Department)
	invitation := domain.Invitation{
		ID:             s.genID.Generate(),
		Email:          emailAddr,
		TokenHash:      domain.HashToken(rawToken),
		Role:           role,
		JobTitle:       strings.TrimSpace(req.JobTitle),
		Department:     department,
		DepartmentCode: slug.Make(department),
		Team:           strings.TrimSpace(req.Team),
		EmploymentType: domain.EmploymentType(req.EmploymentType),
		Salary:         req.Salary,
		SalaryCurrency: strings.ToUpper(strings.TrimSpace(req.SalaryCurrency)),
		JoiningDate:    req.JoiningDate,
		Status:         domain.StatusInitiated,
		InitiatedBy:    strings.TrimSpace(initiatorID),
		InitiatedAt:    now,
		ExpiresAt:      now.Add(policy.InviteTTL()),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch invitation.EmploymentType {
	case domain.EmploymentPermanent:
		invitation.ProbationMonths = req.ProbationMonths
	case domain.EmploymentContract:
		invitation.ContractStartDate = req.ContractStartDate
		invitation.ContractEndDate = req.ContractEndDate
	}

	if err := s.repo.Insert(ctx, s.db, &invitation); err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}
	s.recordTransition(domain.StatusInitiated)

	claimLink := s.claimLink(rawToken)
	dispatched := s.dispatchInvite(ctx, &invitation, claimLink, "invitation")

	s.writeAudit(ctx, "user", initiatorID, actionInitiate, invitation.ID, map[string]any{
		"email":      masking.MaskEmail(invitation.Email),
		"role":       invitation.Role,
		"dispatched": dispatched,
	})

	return &domain.InitiateResponse{
		Invitation:      invitation,
		Token:           rawToken,
		ClaimLink:       claimLink,
		EmailDispatched: dispatched,
	}, nil
}

func (s *Service) Preview(ctx context.Context, token string) (*domain.Preview, error) {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expired := invitation.IsExpired(now)

	return &domain.Preview{
		Email:             invitation.Email,
		Role:              invitation.Role,
		JobTitle:          invitation.JobTitle,
		Department:        invitation.Department,
		Team:              invitation.Team,
		EmploymentType:    invitation.EmploymentType,
		Salary:            invitation.Salary,
		SalaryCurrency:    invitation.SalaryCurrency,
		JoiningDate:       invitation.JoiningDate,
		ContractStartDate: invitation.ContractStartDate,
		ContractEndDate:   invitation.ContractEndDate,
		Status:            invitation.Status,
		IsExpired:         expired,
		IsValid:           !expired && !invitation.Status.IsTerminal(),
		ExpiresAt:         invitation.ExpiresAt,
	}, nil
}

func (s *Service) CompleteStep1(ctx context.Context, token string, req domain.Step1Request) (*domain.Step1Response, error) {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if invitation.IsExpired(now) {
		s.recordRejection("step1", "expired")
		return nil, domain.ErrExpired
	}

	// A double submit after an upstream success must not create a second
	// identity: return the recorded linkage instead.
	if invitation.SubjectID != "" {
		switch invitation.Status {
		case domain.StatusIdentityCreated, domain.StatusProfileCreated, domain.StatusCompleted:
			return &domain.Step1Response{SubjectID: invitation.SubjectID, Status: invitation.Status}, nil
		}
	}

	if invitation.Status != domain.StatusInitiated && invitation.Status != domain.StatusInvitationSent {
		s.recordRejection("step1", "invalid_state")
		return nil, domain.ErrInvalidState
	}

	if vErr := validateStep1(req, s.policy.Get()); vErr != nil {
		s.recordRejection("step1", "validation_error")
		return nil, vErr
	}

	account, err := s.identity.CreateAccount(ctx, identitydomain.CreateAccountRequest{
		Email:       invitation.Email,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Phone:       strings.TrimSpace(req.Phone),
		Password:    req.Password,
		ReferenceID: invitation.ID.String(),
	})
	if err != nil {
		// Identity creation has no partial side effect to roll back: the
		// invitation stays where it was and the caller retries.
		s.log.Warn("identity provisioning failed",
			zap.String("invitation_id", invitation.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	ok, err := s.repo.Transition(ctx, s.db, invitation.ID,
		[]domain.InvitationStatus{domain.StatusInitiated, domain.StatusInvitationSent},
		domain.StatusIdentityCreated,
		map[string]any{
			"subject_id":               account.SubjectID,
			"check_email_for_password": account.RequiresPasswordEmail,
		}, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race. Re-read: if a concurrent call already linked the
		// identity this is still a success.
		return s.resolveStep1Race(ctx, token)
	}
	s.recordTransition(domain.StatusIdentityCreated)

	s.writeAudit(ctx, "invitee", account.SubjectID, actionStep1, invitation.ID, map[string]any{
		"email": masking.MaskEmail(invitation.Email),
	})

	return &domain.Step1Response{SubjectID: account.SubjectID, Status: domain.StatusIdentityCreated}, nil
}

func (s *Service) resolveStep1Race(ctx context.Context, token string) (*domain.Step1Response, error) {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invitation.SubjectID != "" && !invitation.Status.IsTerminal() {
		return &domain.Step1Response{SubjectID: invitation.SubjectID, Status: invitation.Status}, nil
	}
	return nil, domain.ErrInvalidState
}

func (s *Service) CompleteStep2(ctx context.Context, token string, req domain.Step2Request) (*domain.Step2Response, error) {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if invitation.IsExpired(now) {
		s.recordRejection("step2", "expired")
		return nil, domain.ErrExpired
	}

	switch invitation.Status {
	case domain.StatusCompleted:
		return &domain.Step2Response{
			EmployeeID:            invitation.EmployeeID,
			Status:                domain.StatusCompleted,
			CheckEmailForPassword: invitation.CheckEmailForPassword,
		}, nil
	case domain.StatusProfileCreated:
		// The employee record exists but the finalize step did not land
		// (crash or welcome-mail failure). Resume from there.
		if invitation.EmployeeID != "" {
			return s.finalize(ctx, invitation)
		}
		return nil, domain.ErrInvalidState
	case domain.StatusIdentityCreated:
		// proceed below
	default:
		s.recordRejection("step2", "invalid_state")
		return nil, domain.ErrInvalidState
	}

	if invitation.SubjectID == "" {
		// identity_created without a linked subject is unrecoverable.
		s.markFailed(ctx, invitation, "identity linkage missing")
		return nil, domain.ErrInvalidState
	}

	profile, err := s.employee.CreateProfile(ctx, buildProfileRequest(invitation, req))
	if err != nil {
		s.log.Warn("employee provisioning failed",
			zap.String("invitation_id", invitation.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	ok, err := s.repo.Transition(ctx, s.db, invitation.ID,
		[]domain.InvitationStatus{domain.StatusIdentityCreated},
		domain.StatusProfileCreated,
		map[string]any{"employee_id": profile.EmployeeID}, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.resolveStep2Race(ctx, token)
	}
	s.recordTransition(domain.StatusProfileCreated)

	invitation.EmployeeID = profile.EmployeeID
	invitation.Status = domain.StatusProfileCreated

	s.writeAudit(ctx, "invitee", invitation.SubjectID, actionStep2, invitation.ID, map[string]any{
		"email": masking.MaskEmail(invitation.Email),
	})

	return s.finalize(ctx, invitation)
}

// finalize sends the welcome email and marks the invitation completed. It is
// retry-safe: a failure leaves the record in profile_created and a later
// step2 resumes here.
func (s *Service) finalize(ctx context.Context, invitation *domain.Invitation) (*domain.Step2Response, error) {
	data := map[string]any{
		"job_title":                invitation.JobTitle,
		"joining_date":             invitation.JoiningDate.Format("2006-01-02"),
		"check_email_for_password": invitation.CheckEmailForPassword,
	}
	if err := s.email.SendTemplate(ctx, []string{invitation.Email}, "welcome", data); err != nil {
		s.log.Warn("welcome email dispatch failed",
			zap.String("invitation_id", invitation.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	ok, err := s.repo.Transition(ctx, s.db, invitation.ID,
		[]domain.InvitationStatus{domain.StatusProfileCreated},
		domain.StatusCompleted, nil, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent finalize won; read back the terminal row.
		current, err := s.repo.FindByTokenHash(ctx, s.db, invitation.TokenHash)
		if err != nil {
			return nil, err
		}
		if current == nil || current.Status != domain.StatusCompleted {
			return nil, domain.ErrInvalidState
		}
		invitation = current
	} else {
		s.recordTransition(domain.StatusCompleted)
	}

	return &domain.Step2Response{
		EmployeeID:            invitation.EmployeeID,
		Status:                domain.StatusCompleted,
		CheckEmailForPassword: invitation.CheckEmailForPassword,
	}, nil
}

func (s *Service) resolveStep2Race(ctx context.Context, token string) (*domain.Step2Response, error) {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	switch invitation.Status {
	case domain.StatusCompleted:
		return &domain.Step2Response{
			EmployeeID:            invitation.EmployeeID,
			Status:                domain.StatusCompleted,
			CheckEmailForPassword: invitation.CheckEmailForPassword,
		}, nil
	case domain.StatusProfileCreated:
		if invitation.EmployeeID != "" {
			return s.finalize(ctx, invitation)
		}
	}
	return nil, domain.ErrInvalidState
}

func (s *Service) Resend(ctx context.Context, token string) (*domain.ResendResponse, error) {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if invitation.IsExpired(s.clock.Now()) {
		s.recordRejection("resend", "expired")
		return nil, domain.ErrExpired
	}
	if invitation.Status != domain.StatusInitiated && invitation.Status != domain.StatusInvitationSent {
		s.recordRejection("resend", "invalid_state")
		return nil, domain.ErrInvalidState
	}

	// The original link stays valid: no token rotation, no new expiry.
	claimLink := s.claimLink(token)
	if !s.dispatchInvite(ctx, invitation, claimLink, "invitation_reminder") {
		return nil, domain.ErrUpstreamUnavailable
	}

	s.writeAudit(ctx, "user", "", actionResend, invitation.ID, map[string]any{
		"email": masking.MaskEmail(invitation.Email),
		"token": domain.MaskToken(token),
	})

	return &domain.ResendResponse{Status: invitation.Status, Dispatched: true}, nil
}

func (s *Service) Cancel(ctx context.Context, token, reason string) error {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return err
	}

	if invitation.IsExpired(s.clock.Now()) {
		s.recordRejection("cancel", "expired")
		return domain.ErrExpired
	}
	if invitation.Status.IsTerminal() {
		s.recordRejection("cancel", "invalid_state")
		return domain.ErrInvalidState
	}

	ok, err := s.repo.Transition(ctx, s.db, invitation.ID,
		domain.ActiveStatuses(),
		domain.StatusCancelled,
		map[string]any{"cancellation_reason": strings.TrimSpace(reason)}, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidState
	}
	s.recordTransition(domain.StatusCancelled)

	s.writeAudit(ctx, "user", "", actionCancel, invitation.ID, map[string]any{
		"email":  masking.MaskEmail(invitation.Email),
		"reason": strings.TrimSpace(reason),
	})

	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	filter := domain.ListFilter{
		Status:         domain.InvitationStatus(strings.TrimSpace(req.Status)),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		DepartmentCode: slug.Make(strings.TrimSpace(req.Department)),
		InitiatedFrom:  req.InitiatedFrom,
		InitiatedTo:    req.InitiatedTo,
	}
	if req.Department == "" {
		filter.DepartmentCode = ""
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(inv *domain.Invitation) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	invitations := make([]domain.Invitation, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invitations = append(invitations, *item)
	}

	resp := domain.ListResponse{Invitations: invitations}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) findByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	invitation, err := s.repo.FindByTokenHash(ctx, s.db, domain.HashToken(strings.TrimSpace(token)))
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, domain.ErrNotFound
	}
	return invitation, nil
}

func (s *Service) claimLink(rawToken string) string {
	return strings.TrimRight(s.cfg.ClaimLinkBaseURL, "/") + "/onboarding/" + rawToken
}

func (s *Service) dispatchInvite(ctx context.Context, invitation *domain.Invitation, claimLink, templateName string) bool {
	data := map[string]any{
		"company":      s.cfg.AppName,
		"initiated_by": invitation.InitiatedBy,
		"job_title":    invitation.JobTitle,
		"department":   invitation.Department,
		"claim_link":   claimLink,
		"expires_at":   invitation.ExpiresAt.Format("Jan 2, 2006 15:04 MST"),
	}
	if err := s.email.SendTemplate(ctx, []string{invitation.Email}, templateName, data); err != nil {
		s.log.Warn("invitation email dispatch failed",
			zap.String("invitation_id", invitation.ID.String()),
			zap.Error(err),
		)
		return false
	}

	if invitation.Status == domain.StatusInitiated {
		if ok, err := s.repo.Transition(ctx, s.db, invitation.ID,
			[]domain.InvitationStatus{domain.StatusInitiated},
			domain.StatusInvitationSent, nil, s.clock.Now()); err == nil && ok {
			s.recordTransition(domain.StatusInvitationSent)
		}
		// Losing the race means a concurrent dispatch already recorded the
		// same transition.
		invitation.Status = domain.StatusInvitationSent
	}
	return true
}

func (s *Service) markFailed(ctx context.Context, invitation *domain.Invitation, reason string) {
	ok, err := s.repo.Transition(ctx, s.db, invitation.ID,
		domain.ActiveStatuses(),
		domain.StatusFailed,
		map[string]any{"cancellation_reason": reason}, s.clock.Now())
	if err != nil || !ok {
		s.log.Error("could not mark invitation failed",
			zap.String("invitation_id", invitation.ID.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	s.recordTransition(domain.StatusFailed)
	s.log.Error("invitation marked failed",
		zap.String("invitation_id", invitation.ID.String()),
		zap.String("reason", reason),
	)
}

func (s *Service) writeAudit(ctx context.Context, actorType, actorID string, action string, invitationID snowflake.ID, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, actorType, actorID, action, targetTypeInvitation, invitationID.String(), metadata)
}

func (s *Service) recordTransition(status domain.InvitationStatus) {
	if s.metrics != nil {
		s.metrics.RecordTransition(string(status))
	}
}

func (s *Service) recordRejection(operation, reason string) {
	if s.metrics != nil {
		s.metrics.RecordRejection(operation, reason)
	}
}

func buildProfileRequest(invitation *domain.Invitation, req domain.Step2Request) employeedomain.CreateProfileRequest {
	return employeedomain.CreateProfileRequest{
		SubjectID: invitation.SubjectID,
		Email:     invitation.Email,

		// HR-set fields always come from the invitation; the hire cannot
		// change their own role or compensation through this flow.
		Role:           invitation.Role,
		JobTitle:       invitation.JobTitle,
		Department:     invitation.Department,
		Team:           invitation.Team,
		EmploymentType: string(invitation.EmploymentType),
		Salary:         invitation.Salary,
		SalaryCurrency: invitation.SalaryCurrency,
		JoiningDate:    invitation.JoiningDate,

		DateOfBirth:   req.DateOfBirth,
		Gender:        strings.TrimSpace(req.Gender),
		MaritalStatus: strings.TrimSpace(req.MaritalStatus),

		AddressLine1: strings.TrimSpace(req.AddressLine1),
		AddressLine2: strings.TrimSpace(req.AddressLine2),
		City:         strings.TrimSpace(req.City),
		State:        strings.TrimSpace(req.State),
		PostalCode:   strings.TrimSpace(req.PostalCode),
		Country:      strings.TrimSpace(req.Country),

		EmergencyContactName:  strings.TrimSpace(req.EmergencyContactName),
		EmergencyContactPhone: strings.TrimSpace(req.EmergencyContactPhone),

		BankName:          strings.TrimSpace(req.BankName),
		BankAccountNumber: strings.TrimSpace(req.BankAccountNumber),
		BankRoutingCode:   strings.TrimSpace(req.BankRoutingCode),

		ReferenceID: invitation.ID.String(),
	}
}
