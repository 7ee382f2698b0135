package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/humanline/humanline/internal/audit"
	auditdomain "github.com/humanline/humanline/internal/audit/domain"
	"github.com/humanline/humanline/internal/authorization"
	"github.com/humanline/humanline/internal/clock"
	"github.com/humanline/humanline/internal/config"
	"github.com/humanline/humanline/internal/employee"
	"github.com/humanline/humanline/internal/identity"
	identitydomain "github.com/humanline/humanline/internal/identity/domain"
	"github.com/humanline/humanline/internal/migration"
	"github.com/humanline/humanline/internal/observability"
	obslogger "github.com/humanline/humanline/internal/observability/logger"
	obsmetrics "github.com/humanline/humanline/internal/observability/metrics"
	obstracing "github.com/humanline/humanline/internal/observability/tracing"
	"github.com/humanline/humanline/internal/onboarding"
	onboardingdomain "github.com/humanline/humanline/internal/onboarding/domain"
	"github.com/humanline/humanline/internal/providers/email"
	"github.com/humanline/humanline/internal/ratelimit"
	"github.com/humanline/humanline/pkg/db"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	db.Module,
	clock.Module,
	observability.Module,
	migration.Module,
	authorization.Module,
	audit.Module,
	email.Module,
	identity.Module,
	employee.Module,
	onboarding.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	genID  *snowflake.Node

	onboardingSvc onboardingdomain.Service
	auditSvc      auditdomain.Service
	authz         authorization.Service
	identity      identitydomain.Service
	limiter       *ratelimit.ClaimLimiter
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	Log   *zap.Logger
	GenID *snowflake.Node

	OnboardingSvc onboardingdomain.Service
	AuditSvc      auditdomain.Service
	AuthzSvc      authorization.Service
	IdentitySvc   identitydomain.Service
	Limiter       *ratelimit.ClaimLimiter
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		genID:         p.GenID,
		onboardingSvc: p.OnboardingSvc,
		auditSvc:      p.AuditSvc,
		authz:         p.AuthzSvc,
		identity:      p.IdentitySvc,
		limiter:       p.Limiter,
	}

	svc.registerAdminRoutes()
	svc.registerOnboardingRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AuthRequired())

	admin.POST("/invitations",
		s.RequirePermission(authorization.ObjectInvitation, authorization.ActionInvitationCreate),
		s.InitiateInvitation)
	admin.GET("/invitations",
		s.RequirePermission(authorization.ObjectInvitation, authorization.ActionInvitationView),
		s.ListInvitations)
	admin.POST("/invitations/:token/resend",
		s.RequirePermission(authorization.ObjectInvitation, authorization.ActionInvitationResend),
		s.ResendInvitation)
	admin.POST("/invitations/:token/cancel",
		s.RequirePermission(authorization.ObjectInvitation, authorization.ActionInvitationCancel),
		s.CancelInvitation)

	admin.GET("/audit-logs",
		s.RequirePermission(authorization.ObjectAuditLog, authorization.ActionAuditLogView),
		s.ListAuditLogs)
}

func (s *Server) registerOnboardingRoutes() {
	// Claim endpoints authenticate by token possession alone.
	public := s.engine.Group("/onboarding")
	public.Use(s.ClaimRateLimit())

	public.GET("/:token", s.PreviewInvitation)
	public.POST("/:token/account", s.CompleteAccountStep)
	public.POST("/:token/profile", s.CompleteProfileStep)
}

func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	return payload.Type, err.Error()
}
