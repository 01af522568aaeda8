package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/cpp-cyber/ldapauth/internal/api/handlers"
)

// registerAdminRoutes defines the directory maintenance routes
func registerAdminRoutes(g *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	g.POST("/users", authHandler.AddOrUpdateUserHandler)
}
