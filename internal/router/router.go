package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/asmorodws/simlok2-sub012/internal/config"
	"github.com/asmorodws/simlok2-sub012/internal/handler"
	"github.com/asmorodws/simlok2-sub012/internal/middleware"
	"github.com/asmorodws/simlok2-sub012/internal/model"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check, which
// load balancers and monitoring checks hit without credentials.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterVerification registers the field-verification endpoint.  Every
// role may scan: verifiers do it as their job, but reviewers, approvers
// and vendors also spot-check printed documents.  The token-bucket limiter
// fronts the route so a misbehaving scanner cannot flood the audit trail.
func RegisterVerification(e *echo.Echo, v *handler.VerifyHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(
			model.RoleVerifier,
			model.RoleReviewer,
			model.RoleApprover,
			model.RoleVendor,
			model.RoleAdmin,
		),
		middleware.NewTokenBucket(rl, rdb),
	)
	g.POST("/verify", v.Verify)
}

// RegisterPermits registers the permit endpoints under /v1.  Reads are
// open to every authenticated role (handlers enforce vendor ownership);
// approval is restricted to approvers and admins, and the number preview
// to the reviewing roles that render approval forms.
func RegisterPermits(e *echo.Echo, p *handler.PermitHandler, jwtSecret string, cc config.CacheConfig, rdb *redis.Client) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	// Read endpoints sit behind the short-TTL response cache; the cache
	// key includes the caller identity so audiences never share entries.
	reads := g.Group("", middleware.NewRedisCache(cc, rdb))
	reads.GET("/permits/:id", p.GetByID)
	reads.GET("/permits/:id/scans", p.ListScans)

	g.GET("/permits/number/preview", p.PreviewNumber,
		middleware.RequireRole(model.RoleReviewer, model.RoleApprover, model.RoleAdmin))
	g.POST("/permits/:id/approve", p.Approve,
		middleware.RequireRole(model.RoleApprover, model.RoleAdmin))
}

// RegisterDashboard registers the notification history and the live event
// stream.  Scope resolution happens inside the handlers from the JWT
// identity, so no role middleware beyond authentication is needed here.
func RegisterDashboard(e *echo.Echo, n *handler.NotificationHandler, s *handler.StreamHandler, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	g.GET("/notifications", n.List)
	g.POST("/notifications/:id/read", n.MarkRead)
	g.GET("/events/stream", s.Stream)
}

// RegisterAdmin registers privileged maintenance endpoints.
func RegisterAdmin(e *echo.Echo, c *handler.CounterHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/counters/:period/reset", c.Reset)
}
