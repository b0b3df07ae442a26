package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aman-churiwal/governance-api/internal/activity"
	"github.com/aman-churiwal/governance-api/internal/cache"
	"github.com/aman-churiwal/governance-api/internal/config"
	"github.com/aman-churiwal/governance-api/internal/handler"
	"github.com/aman-churiwal/governance-api/internal/healthcheck"
	"github.com/aman-churiwal/governance-api/internal/middleware"
	"github.com/aman-churiwal/governance-api/internal/quota"
	"github.com/aman-churiwal/governance-api/internal/ratelimit"
	"github.com/aman-churiwal/governance-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators the HTTP surface is wired from.
type Deps struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Cache     *cache.Cache
	Limits    *ratelimit.Service
	Gate      *quota.Gate
	Auth      *service.AuthService
	Tracker   *activity.Tracker
	Admission *middleware.AdmissionLogger // optional
	Health    *healthcheck.Checker
	Admin     *handler.AdminHandler
	Session   *handler.SessionHandler
	Metrics   http.Handler
}

type Server struct {
	router     *gin.Engine
	deps       Deps
	log        *logrus.Logger
	httpServer *http.Server
}

// New builds the router. A route naming an unknown rate class, feature,
// tier or resource fails here rather than at request time.
func New(deps Deps) (*Server, error) {
	if deps.Config.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router: gin.New(),
		deps:   deps,
		log:    deps.Logger,
	}

	routes := s.routes()
	if err := validateRoutes(routes, deps.Limits.Policy()); err != nil {
		return nil, fmt.Errorf("invalid route table: %w", err)
	}

	s.setupMiddleware()
	s.setupRoutes(routes)

	return s, nil
}

// Identity is read before the limiter so authenticated callers are counted
// per user, and activity is recorded before any rejection.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.log))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.log))
	s.router.Use(middleware.CORS(s.deps.Config.CORS.AllowedOrigins))
	if s.deps.Admission != nil {
		s.router.Use(s.deps.Admission.Middleware())
	}
	s.router.Use(middleware.Credentials(s.deps.Auth))
	s.router.Use(middleware.ActivityTracker(s.deps.Tracker))
}

func (s *Server) setupRoutes(routes []Route) {
	for _, r := range routes {
		s.router.Handle(r.Method, r.Path, s.chain(r)...)
		s.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.Path,
			"class":  r.Class,
		}).Debug("Registered route")
	}
}

// chain orders the admission layers: rate limit, authentication, role, plan.
func (s *Server) chain(r Route) []gin.HandlerFunc {
	handlers := []gin.HandlerFunc{middleware.RateLimit(s.deps.Limits, r.Class)}
	if r.Auth {
		handlers = append(handlers, middleware.RequireAuth())
	}
	if r.Admin {
		handlers = append(handlers, middleware.RequireAdmin())
	}
	if !r.Require.IsZero() {
		handlers = append(handlers, middleware.Require(s.deps.Gate, r.Require))
	}
	return append(handlers, r.Handler)
}

// Running on the memory cache is reported as degraded but still serves.
func (s *Server) healthCheck(c *gin.Context) {
	overall := s.deps.Health.OverallHealth()
	mode := s.deps.Cache.Mode()

	status := overall
	if status == healthcheck.Healthy && mode.Degraded() {
		status = healthcheck.Degraded
	}

	statusCode := http.StatusOK
	if overall == healthcheck.Unhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":     status,
		"service":    "governance-api",
		"cache_mode": mode,
		"timestamp":  time.Now().Unix(),
		"checks":     s.deps.Health.GetAllStatus(),
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.WithFields(logrus.Fields{
		"addr":        addr,
		"environment": s.deps.Config.Server.Environment,
	}).Info("Starting governance API")

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
