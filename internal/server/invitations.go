package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/humanline/humanline/internal/onboarding/domain"
	"github.com/humanline/humanline/pkg/db/pagination"
)

type initiateInvitationRequest struct {
	Email             string  `json:"email"`
	Role              string  `json:"role"`
	JobTitle          string  `json:"job_title"`
	Department        string  `json:"department"`
	Team              string  `json:"team"`
	EmploymentType    string  `json:"employment_type"`
	Salary            int64   `json:"salary"`
	SalaryCurrency    string  `json:"salary_currency"`
	JoiningDate       string  `json:"joining_date"`
	ProbationMonths   *int    `json:"probation_months"`
	ContractStartDate *string `json:"contract_start_date"`
	ContractEndDate   *string `json:"contract_end_date"`
}

func (s *Server) InitiateInvitation(c *gin.Context) {
	actor := actorFrom(c)
	if actor == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var body initiateInvitationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := domain.InitiateRequest{
		Email:           body.Email,
		Role:            body.Role,
		JobTitle:        body.JobTitle,
		Department:      body.Department,
		Team:            body.Team,
		EmploymentType:  body.EmploymentType,
		Salary:          body.Salary,
		SalaryCurrency:  body.SalaryCurrency,
		ProbationMonths: body.ProbationMonths,
	}

	if value := strings.TrimSpace(body.JoiningDate); value != "" {
		parsed, err := parseDate(value)
		if err != nil {
			AbortWithError(c, newFieldError("joining_date", "invalid", "invalid joining_date"))
			return
		}
		req.JoiningDate = parsed
	}
	if body.ContractStartDate != nil {
		parsed, err := parseDate(*body.ContractStartDate)
		if err != nil {
			AbortWithError(c, newFieldError("contract_start_date", "invalid", "invalid contract_start_date"))
			return
		}
		req.ContractStartDate = &parsed
	}
	if body.ContractEndDate != nil {
		parsed, err := parseDate(*body.ContractEndDate)
		if err != nil {
			AbortWithError(c, newFieldError("contract_end_date", "invalid", "invalid contract_end_date"))
			return
		}
		req.ContractEndDate = &parsed
	}

	resp, err := s.onboardingSvc.Initiate(c.Request.Context(), actor.Role, actor.SubjectID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

type listInvitationsQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
	Status     string `form:"status"`
	Email      string `form:"email"`
	Department string `form:"department"`
	From       string `form:"from"`
	To         string `form:"to"`
}

func (s *Server) ListInvitations(c *gin.Context) {
	var query listInvitationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := domain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status:     strings.TrimSpace(query.Status),
		Email:      strings.TrimSpace(query.Email),
		Department: strings.TrimSpace(query.Department),
	}

	if value := strings.TrimSpace(query.From); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			AbortWithError(c, newFieldError("from", "invalid", "invalid from"))
			return
		}
		req.InitiatedFrom = &parsed
	}
	if value := strings.TrimSpace(query.To); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			AbortWithError(c, newFieldError("to", "invalid", "invalid to"))
			return
		}
		req.InitiatedTo = &parsed
	}

	resp, err := s.onboardingSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ResendInvitation(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, domain.ErrNotFound)
		return
	}

	resp, err := s.onboardingSvc.Resend(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type cancelInvitationRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelInvitation(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, domain.ErrNotFound)
		return
	}

	var body cancelInvitationRequest
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.onboardingSvc.Cancel(c.Request.Context(), token, body.Reason); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(domain.StatusCancelled)})
}

// parseDate accepts RFC3339 timestamps or bare dates.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", value)
}

func newFieldError(field, code, message string) error {
	return &domain.ValidationErrors{
		Errors: []domain.FieldError{{Field: field, Code: code, Message: message}},
	}
}
