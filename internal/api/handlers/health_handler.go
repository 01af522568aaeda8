package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PUBLIC: HealthCheckHandler reports the API, directory and database status
func HealthCheckHandler(authHandler *AuthHandler, db HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		services := gin.H{"api": "healthy"}
		healthStatus := gin.H{
			"status":   "healthy",
			"services": services,
		}

		statusCode := http.StatusOK

		if authHandler != nil && authHandler.authService != nil {
			if err := authHandler.authService.TestConnection(c.Request.Context()); err != nil {
				services["ldap"] = gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				}
				healthStatus["status"] = "degraded"
				statusCode = http.StatusServiceUnavailable
			} else {
				services["ldap"] = "healthy"
			}
		}

		if db != nil {
			if err := db.HealthCheck(c.Request.Context()); err != nil {
				services["database"] = gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				}
				healthStatus["status"] = "degraded"
				statusCode = http.StatusServiceUnavailable
			} else {
				services["database"] = "healthy"
			}
		}

		c.JSON(statusCode, healthStatus)
	}
}
