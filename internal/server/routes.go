package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aman-churiwal/governance-api/internal/handler"
	"github.com/aman-churiwal/governance-api/internal/quota"
	"github.com/aman-churiwal/governance-api/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Route declares one endpoint and the admission layers in front of it.
type Route struct {
	Method  string
	Path    string
	Class   ratelimit.Class
	Auth    bool
	Admin   bool
	Require quota.Requirement
	Handler gin.HandlerFunc
}

// Validate fails on declarations that would misbehave at request time.
func (r Route) Validate(policy ratelimit.Policy) error {
	if r.Handler == nil {
		return errors.New("no handler")
	}
	if _, ok := policy[r.Class]; !ok {
		return fmt.Errorf("unknown rate class %q", r.Class)
	}
	if err := r.Require.Validate(); err != nil {
		return err
	}
	if (r.Admin || !r.Require.IsZero()) && !r.Auth {
		return errors.New("admin and plan checks need an authenticated caller")
	}
	return nil
}

func validateRoutes(routes []Route, policy ratelimit.Policy) error {
	var errs []error
	for _, r := range routes {
		if err := r.Validate(policy); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", r.Method, r.Path, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) routes() []Route {
	admin := s.deps.Admin
	session := s.deps.Session

	return []Route{
		{Method: http.MethodGet, Path: "/health", Class: ratelimit.ClassHealth, Handler: s.healthCheck},
		{Method: http.MethodGet, Path: "/metrics", Class: ratelimit.ClassHealth, Handler: gin.WrapH(s.deps.Metrics)},

		// Credentials are issued by the identity provider; these are throttled here.
		{Method: http.MethodPost, Path: "/api/auth/login", Class: ratelimit.ClassAuthentication, Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/auth/register", Class: ratelimit.ClassAuthentication, Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/auth/password-reset", Class: ratelimit.ClassAuthentication, Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/auth/logout", Class: ratelimit.ClassDefault, Auth: true, Handler: session.Logout},

		{Method: http.MethodGet, Path: "/api/subscription", Class: ratelimit.ClassDefault, Auth: true, Handler: session.Subscription},
		{Method: http.MethodGet, Path: "/api/projects", Class: ratelimit.ClassDefault, Auth: true, Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/projects", Class: ratelimit.ClassDefault, Auth: true,
			Require: quota.NeedsQuota(quota.ResourceProjects), Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/projects/:id/members", Class: ratelimit.ClassDefault, Auth: true,
			Require: quota.NeedsQuota(quota.ResourceTeamMembers), Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/projects/:id/collaborators", Class: ratelimit.ClassDefault, Auth: true,
			Require: quota.NeedsFeature(quota.FeatureCollaboration), Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/projects/import", Class: ratelimit.ClassDefault, Auth: true,
			Require: quota.NeedsFeature(quota.FeatureRepositoryImport), Handler: handler.Admitted},

		{Method: http.MethodPost, Path: "/api/chat", Class: ratelimit.ClassChat, Auth: true,
			Require: quota.NeedsQuota(quota.ResourceQuestionsPerMonth), Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/chat/direct", Class: ratelimit.ClassChat, Auth: true,
			Require: quota.NeedsFeature(quota.FeatureDirectMode), Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/chat/providers", Class: ratelimit.ClassChat, Auth: true,
			Require: quota.NeedsFeature(quota.FeatureMultiProviderLLM), Handler: handler.Admitted},
		{Method: http.MethodPost, Path: "/api/codegen", Class: ratelimit.ClassDefault, Auth: true,
			Require: quota.NeedsFeature(quota.FeatureCodeGeneration), Handler: handler.Admitted},
		{Method: http.MethodGet, Path: "/api/analytics", Class: ratelimit.ClassDefault, Auth: true,
			Require: quota.NeedsFeature(quota.FeatureAdvancedAnalytics), Handler: handler.Admitted},
		{Method: http.MethodGet, Path: "/api/v1/projects", Class: ratelimit.ClassDefault, Auth: true,
			Require: quota.NeedsFeature(quota.FeatureAPIAccess), Handler: handler.Admitted},
		{Method: http.MethodGet, Path: "/api/enterprise/audit", Class: ratelimit.ClassDefault, Auth: true,
			Require: quota.NeedsTier(quota.TierEnterprise), Handler: handler.Admitted},

		{Method: http.MethodGet, Path: "/admin/status", Class: ratelimit.ClassDefault, Auth: true, Admin: true, Handler: admin.Status},
		{Method: http.MethodPost, Path: "/admin/shutdown", Class: ratelimit.ClassDefault, Auth: true, Admin: true, Handler: admin.ScheduleShutdown},
		{Method: http.MethodDelete, Path: "/admin/shutdown", Class: ratelimit.ClassDefault, Auth: true, Admin: true, Handler: admin.CancelShutdown},
		{Method: http.MethodDelete, Path: "/admin/cache", Class: ratelimit.ClassDefault, Auth: true, Admin: true, Handler: admin.ClearCache},
		{Method: http.MethodPost, Path: "/admin/cache/breaker/reset", Class: ratelimit.ClassDefault, Auth: true, Admin: true, Handler: admin.ResetBreaker},
		{Method: http.MethodPut, Path: "/admin/users/:id/tier", Class: ratelimit.ClassDefault, Auth: true, Admin: true, Handler: admin.ChangeTier},
	}
}
