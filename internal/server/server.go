package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/authz"
	"github.com/vehicert/vehicert/internal/common/config"
	"github.com/vehicert/vehicert/internal/common/logger"
	"github.com/vehicert/vehicert/internal/common/middleware"
	"github.com/vehicert/vehicert/internal/kratos"
)

// Server is the HTTP surface of the auth orchestrator. All flow and session
// state lives at the identity provider; the server holds only process-wide
// dependencies and builds per-request clients that forward the caller's
// credentials.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	audit   *logger.AuditLogger
	redis   redis.UniversalClient
	cache   *authz.ProfileCache
	backend *authz.BackendClient
	router  *gin.Engine
}

// New assembles the router with the full middleware chain and all routes
func New(cfg *config.Config, log *zap.Logger, rdb redis.UniversalClient) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  log,
		audit:   logger.NewAuditLogger(log),
		redis:   rdb,
		backend: authz.NewBackendClient(cfg.BackendURL, log),
	}

	if cfg.ProfileCacheEnabled && rdb != nil {
		s.cache = authz.NewProfileCache(rdb, cfg.ProfileCacheTTL, log)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(logger.GinMiddleware(log))
	router.Use(middleware.CORS(cfg.GetCORSOrigins()))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	if cfg.EnableTracing {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}

	if cfg.EnableCSRF {
		router.Use(middleware.CSRFProtection(middleware.AuthCSRFConfig(cfg.TrustedDomain), log))
	}

	if cfg.EnableRateLimit {
		router.Use(middleware.DistributedRateLimit(rdb, middleware.RateLimitConfig{
			Requests:     cfg.RateLimitRequests,
			Window:       time.Duration(cfg.RateLimitWindow) * time.Second,
			AuthRequests: cfg.RateLimitRequests / 10,
			AuthWindow:   time.Duration(cfg.RateLimitWindow) * time.Second,
		}, log))
	}

	s.router = router
	s.registerRoutes()
	return s
}

// Router exposes the configured gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.NoRoute(s.handleNotFound)
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
	s.router.GET("/metrics", middleware.MetricsHandler())

	auth := s.router.Group("/auth")
	{
		auth.GET("/login", s.handleLoginBegin)
		auth.POST("/login", s.handleLoginSubmit)

		auth.GET("/registration", s.handleRegistrationBegin)
		auth.POST("/registration", s.handleRegistrationSubmit)

		auth.GET("/recovery", s.handleRecoveryBegin)
		auth.POST("/recovery", s.handleRecoverySubmit)
		auth.POST("/recovery/resend", s.handleRecoveryResend)

		auth.GET("/settings/totp", s.handleEnrollmentBegin)
		auth.POST("/settings/totp/verify", s.handleEnrollmentVerify)
		auth.POST("/settings/totp/unlink", s.handleTOTPUnlink)
		auth.POST("/settings/password", s.handlePasswordChange)

		auth.GET("/session", s.handleSession)
		auth.POST("/logout", s.handleLogout)
	}
}

// kratosClient builds a per-request provider client. Incoming credentials
// (session cookie or X-Session-Token) are forwarded upstream, and every
// Set-Cookie the provider issues is relayed back to the browser so the CSRF
// and session cookies stay in sync.
func (s *Server) kratosClient(c *gin.Context) *kratos.Client {
	return kratos.New(s.cfg.KratosURL, s.logger).
		WithForward(c.Request.Header).
		WithResponseHook(func(resp *http.Response) {
			for _, sc := range resp.Header.Values("Set-Cookie") {
				c.Writer.Header().Add("Set-Cookie", sc)
			}
		})
}

// authzService builds the per-request session/permission view
func (s *Server) authzService(c *gin.Context, kc *kratos.Client) *authz.Service {
	return authz.NewService(authz.Config{
		Provider: kc,
		Backend:  s.backend.WithForward(c.Request.Header),
		Cache:    s.cache,
		LoginURL: s.cfg.LoginURL,
		Logger:   s.logger,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": s.cfg.ServiceName,
	})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.redis != nil {
		if err := s.redis.Ping(c.Request.Context()).Err(); err != nil {
			s.logger.Warn("Readiness check: Redis unreachable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"redis":  "unreachable",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
