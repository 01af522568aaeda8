package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cpp-cyber/ldapauth/internal/api/handlers"
	"github.com/cpp-cyber/ldapauth/internal/api/middleware"
)

// Options carries the collaborators routes need beyond the handlers.
type Options struct {
	Verifier       middleware.TokenVerifier
	LoginLimiter   gin.HandlerFunc
	Database       handlers.HealthChecker
	AdminUsers     []string
	MetricsEnabled bool
}

// RegisterRoutes sets up all API routes with their respective middleware and handlers
func RegisterRoutes(r *gin.Engine, authHandler *handlers.AuthHandler, opts Options) {
	loginLimiter := opts.LoginLimiter
	if loginLimiter == nil {
		loginLimiter = func(c *gin.Context) { c.Next() }
	}

	// Public routes (no token required)
	public := r.Group("/api/v1")
	registerPublicRoutes(public, authHandler, loginLimiter, opts.Database)

	// Private routes (valid token required)
	private := r.Group("/api/v1")
	private.Use(middleware.TokenRequired(opts.Verifier))
	registerPrivateRoutes(private, authHandler)

	// Maintenance routes (valid token of a listed admin required)
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.TokenRequired(opts.Verifier), middleware.AdminRequired(opts.AdminUsers))
	registerAdminRoutes(admin, authHandler)

	if opts.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}
