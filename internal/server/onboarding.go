package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/humanline/humanline/internal/onboarding/domain"
)

func (s *Server) PreviewInvitation(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, domain.ErrNotFound)
		return
	}

	preview, err := s.onboardingSvc.Preview(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

type completeAccountRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

func (s *Server) CompleteAccountStep(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, domain.ErrNotFound)
		return
	}

	var body completeAccountRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.onboardingSvc.CompleteStep1(c.Request.Context(), token, domain.Step1Request{
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Phone:     body.Phone,
		Password:  body.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type completeProfileRequest struct {
	DateOfBirth   *string `json:"date_of_birth"`
	Gender        string  `json:"gender"`
	MaritalStatus string  `json:"marital_status"`

	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`

	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`

	BankName          string `json:"bank_name"`
	BankAccountNumber string `json:"bank_account_number"`
	BankRoutingCode   string `json:"bank_routing_code"`
}

func (s *Server) CompleteProfileStep(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, domain.ErrNotFound)
		return
	}

	var body completeProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := domain.Step2Request{
		Gender:        body.Gender,
		MaritalStatus: body.MaritalStatus,

		AddressLine1: body.AddressLine1,
		AddressLine2: body.AddressLine2,
		City:         body.City,
		State:        body.State,
		PostalCode:   body.PostalCode,
		Country:      body.Country,

		EmergencyContactName:  body.EmergencyContactName,
		EmergencyContactPhone: body.EmergencyContactPhone,

		BankName:          body.BankName,
		BankAccountNumber: body.BankAccountNumber,
		BankRoutingCode:   body.BankRoutingCode,
	}

	if body.DateOfBirth != nil {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(*body.DateOfBirth))
		if err != nil {
			AbortWithError(c, newFieldError("date_of_birth", "invalid", "invalid date_of_birth"))
			return
		}
		req.DateOfBirth = &parsed
	}

	resp, err := s.onboardingSvc.CompleteStep2(c.Request.Context(), token, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
