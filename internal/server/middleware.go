package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/humanline/humanline/internal/identity/domain"
	"github.com/humanline/humanline/internal/observability/obscontext"
	"github.com/humanline/humanline/internal/onboarding/domain"
	"go.uber.org/zap"
)

const contextActorKey = "actor"

// AuthRequired resolves the bearer token against the identity service and
// stores the resulting actor for downstream handlers.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor, err := s.identity.Introspect(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextActorKey, actor)
		c.Request = c.Request.WithContext(
			obscontext.WithActor(c.Request.Context(), "user", actor.SubjectID),
		)
		c.Next()
	}
}

// RequirePermission gates a route on the casbin policy for the actor's role.
func (s *Server) RequirePermission(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if actor == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authz.Authorize(c.Request.Context(), actor.SubjectID, actor.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// ClaimRateLimit throttles the unauthenticated claim endpoints per client
// IP and per token. Redis being down must not lock new hires out, so
// limiter errors fail open.
func (s *Server) ClaimRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		ipResult, err := s.limiter.AllowIP(ctx, c.ClientIP())
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ipResult.Allowed {
			tooManyRequests(c, ipResult.RetryAfter)
			return
		}

		if token := strings.TrimSpace(c.Param("token")); token != "" {
			tokenResult, err := s.limiter.AllowToken(ctx, domain.HashToken(token))
			if err != nil {
				s.log.Warn("rate limiter unavailable", zap.Error(err))
				c.Next()
				return
			}
			if !tokenResult.Allowed {
				tooManyRequests(c, tokenResult.RetryAfter)
				return
			}
		}

		c.Next()
	}
}

func tooManyRequests(c *gin.Context, retryAfter time.Duration) {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
		Type:    "rate_limited",
		Message: "too many requests",
	}})
}

func actorFrom(c *gin.Context) *identitydomain.Actor {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return nil
	}
	actor, _ := value.(*identitydomain.Actor)
	return actor
}
