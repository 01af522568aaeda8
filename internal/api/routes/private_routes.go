package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/cpp-cyber/ldapauth/internal/api/handlers"
)

// registerPrivateRoutes defines all routes accessible with a valid token
func registerPrivateRoutes(g *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	g.GET("/session", authHandler.SessionHandler)
}
