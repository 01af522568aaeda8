package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cpp-cyber/ldapauth/internal/api/auth"
	"github.com/cpp-cyber/ldapauth/internal/metrics"
)

type AuthHandler struct {
	authService auth.Service
	metrics     metrics.Recorder
	logger      *zap.Logger
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// API endpoint request structures

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Department  string `json:"department"`
	Title       string `json:"title"`
}

type LoginResponse struct {
	Status string       `json:"status"`
	Token  string       `json:"token"`
	User   UserResponse `json:"user"`
}

// validateAndBind binds the JSON body into req and answers 400 when it is
// malformed or fails its binding tags.
func validateAndBind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}
