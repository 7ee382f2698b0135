package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/humanline/humanline/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyClaimIP    = "onboarding:claim:ip:%s"
	keyClaimToken = "onboarding:claim:token:%s"
)

// ClaimLimiter throttles the unauthenticated claim-link endpoints, per
// client IP and per token hash. Token links leak (forwarded mails, chat
// logs), so the token dimension caps brute-force probing independently of
// the source address.
type ClaimLimiter struct {
	enabled bool
	bucket  *TokenBucket

	ipRate     float64
	ipBurst    int
	tokenRate  float64
	tokenBurst int
}

func NewClaimLimiter(cfg config.Config) *ClaimLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &ClaimLimiter{enabled: false}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &ClaimLimiter{
		enabled:    true,
		bucket:     NewTokenBucket(client),
		ipRate:     1,
		ipBurst:    20,
		tokenRate:  0.5,
		tokenBurst: 10,
	}
}

func (l *ClaimLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ClaimLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyClaimIP, strings.TrimSpace(ip)), l.ipRate, l.ipBurst)
}

func (l *ClaimLimiter) AllowToken(ctx context.Context, tokenHash string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyClaimToken, strings.TrimSpace(tokenHash)), l.tokenRate, l.tokenBurst)
}
