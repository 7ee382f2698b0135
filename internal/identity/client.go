package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/humanline/humanline/internal/config"
	"github.com/humanline/humanline/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("identity.client",
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
	timeout := time.Duration(cfg.Identity.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.Identity.BaseURL,
		token:   cfg.Identity.AuthToken,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("identity.client"),
	}
}

func (c *Client) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var account domain.Account
	if err := c.post(ctx, "/v1/accounts", req, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) Introspect(ctx context.Context, bearerToken string) (*domain.Actor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]string{"token": bearerToken}
	var actor domain.Actor
	if err := c.post(ctx, "/v1/introspect", body, &actor); err != nil {
		return nil, err
	}
	if actor.SubjectID == "" {
		return nil, domain.ErrUnauthorized
	}
	return &actor, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("identity call failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case resp.StatusCode >= http.StatusInternalServerError:
		c.log.Warn("identity call errored",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", domain.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("identity rejected request: status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
