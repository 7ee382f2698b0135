package employee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/humanline/humanline/internal/config"
	"github.com/humanline/humanline/internal/employee/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("employee.client",
	fx.Provide(New),
)

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
	log     *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) domain.Service {
	timeout := time.Duration(cfg.Employee.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.Employee.BaseURL,
		token:   cfg.Employee.AuthToken,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("employee.client"),
	}
}

func (c *Client) CreateProfile(ctx context.Context, req domain.CreateProfileRequest) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	buf, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/employees", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("employee call failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.log.Warn("employee call errored", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", domain.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("employee service rejected request: status %d", resp.StatusCode)
	}

	var profile domain.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
