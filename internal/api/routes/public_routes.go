package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/cpp-cyber/ldapauth/internal/api/handlers"
)

// registerPublicRoutes defines all routes accessible without a token
func registerPublicRoutes(g *gin.RouterGroup, authHandler *handlers.AuthHandler, loginLimiter gin.HandlerFunc, db handlers.HealthChecker) {
	// GET Requests
	g.GET("/health", handlers.HealthCheckHandler(authHandler, db))
	g.GET("/auth/find/:username", authHandler.FindUserHandler)
	g.GET("/auth/test-connection", authHandler.TestConnectionHandler)

	// POST Requests
	g.POST("/auth/authenticate", loginLimiter, authHandler.AuthenticateHandler)
	g.POST("/logout", authHandler.LogoutHandler)
}
