package service

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/humanline/humanline/internal/config"
	"github.com/humanline/humanline/internal/onboarding/domain"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// validateInitiate checks the whole payload and reports every violation at
// once rather than failing on the first.
func validateInitiate(req domain.InitiateRequest) error {
	v := &domain.ValidationErrors{}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		v.Add("email", "required", "email is required")
	} else if !emailPattern.MatchString(email) {
		v.Add("email", "invalid", "email is not a valid address")
	}

	if strings.TrimSpace(req.JobTitle) == "" {
		v.Add("job_title", "required", "job_title is required")
	}

	if req.Salary <= 0 {
		v.Add("salary", "invalid", "salary must be positive")
	}
	if currency := strings.TrimSpace(req.SalaryCurrency); len(currency) != 3 {
		v.Add("salary_currency", "invalid", "salary_currency must be a 3-letter ISO code")
	}

	if req.JoiningDate.IsZero() {
		v.Add("joining_date", "required", "joining_date is required")
	}

	switch domain.EmploymentType(req.EmploymentType) {
	case domain.EmploymentPermanent:
		if req.ProbationMonths != nil && (*req.ProbationMonths < 0 || *req.ProbationMonths > 24) {
			v.Add("probation_months", "invalid", "probation_months must be between 0 and 24")
		}
		if req.ContractStartDate != nil || req.ContractEndDate != nil {
			v.Add("contract_start_date", "invalid", "contract dates do not apply to permanent employment")
		}
	case domain.EmploymentContract:
		if req.ProbationMonths != nil {
			v.Add("probation_months", "invalid", "probation_months does not apply to contract employment")
		}
		if req.ContractStartDate == nil {
			v.Add("contract_start_date", "required", "contract_start_date is required for contract employment")
		}
		if req.ContractEndDate == nil {
			v.Add("contract_end_date", "required", "contract_end_date is required for contract employment")
		} else if req.ContractStartDate != nil && !req.ContractEndDate.After(*req.ContractStartDate) {
			v.Add("contract_end_date", "invalid", "contract_end_date must be after contract_start_date")
		}
	default:
		v.Add("employment_type", "invalid", "employment_type must be permanent or contract")
	}

	if v.HasErrors() {
		return v
	}
	return nil
}

func validateStep1(req domain.Step1Request, policy config.OnboardingPolicy) error {
	v := &domain.ValidationErrors{}

	if strings.TrimSpace(req.FirstName) == "" {
		v.Add("first_name", "required", "first_name is required")
	}
	if strings.TrimSpace(req.LastName) == "" {
		v.Add("last_name", "required", "last_name is required")
	}

	validatePassword(v, req.Password, policy.PasswordMinLength)

	if v.HasErrors() {
		return v
	}
	return nil
}

func validatePassword(v *domain.ValidationErrors, password string, minLength int) {
	if minLength <= 0 {
		minLength = config.DefaultOnboardingPolicy().PasswordMinLength
	}
	if len(password) < minLength {
		v.Add("password", "too_short", "password does not meet the minimum length")
		return
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}

	if !upper {
		v.Add("password", "missing_uppercase", "password needs at least one uppercase letter")
	}
	if !lower {
		v.Add("password", "missing_lowercase", "password needs at least one lowercase letter")
	}
	if !digit {
		v.Add("password", "missing_digit", "password needs at least one digit")
	}
	if !special {
		v.Add("password", "missing_special", "password needs at least one special character")
	}
}
