package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cpp-cyber/ldapauth/internal/api/auth"
	"github.com/cpp-cyber/ldapauth/internal/api/middleware"
	"github.com/cpp-cyber/ldapauth/internal/audit"
	"github.com/cpp-cyber/ldapauth/internal/ldap"
	"github.com/cpp-cyber/ldapauth/internal/metrics"
)

// =================================================
// Authentication Handlers
// =================================================

func NewAuthHandler(authService auth.Service, metricsRecorder metrics.Recorder, logger *zap.Logger) *AuthHandler {
	if metricsRecorder == nil {
		metricsRecorder = metrics.NewNoopMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthHandler{
		authService: authService,
		metrics:     metricsRecorder,
		logger:      logger.Named("handlers"),
	}
}

// PUBLIC: AuthenticateHandler validates credentials and returns a signed token
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req LoginRequest
	if !validateAndBind(c, &req) {
		return
	}

	outcome, err := h.authService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Error("authentication failed unexpectedly", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, audit.ErrorPayload(audit.ResponseUnexpected))
		return
	}

	switch outcome.Status {
	case ldap.StatusSuccess:
		session := sessions.Default(c)
		session.Set(middleware.SessionUserKey, outcome.Username)
		session.Set(middleware.SessionTokenKey, outcome.Token)
		if err := session.Save(); err != nil {
			// The bearer token in the body still works without the cookie.
			h.logger.Error("failed to save session", zap.String("username", outcome.Username), zap.Error(err))
		}

		identity := outcome.Identity
		c.JSON(http.StatusOK, LoginResponse{
			Status: "success",
			Token:  outcome.Token,
			User: UserResponse{
				Username:    outcome.Username,
				Email:       identity.Email,
				DisplayName: identity.DisplayName,
				Department:  identity.Department,
				Title:       identity.Title,
			},
		})

	case ldap.StatusNotFound, ldap.StatusInvalidCredential:
		c.JSON(http.StatusUnauthorized, audit.ErrorPayload(audit.ResponseRejected))

	default:
		// The detail names internal hosts; it stays in the log and the audit trail.
		h.logger.Error("directory unavailable during authentication",
			zap.String("username", outcome.Username),
			zap.String("detail", outcome.Detail()),
		)
		c.JSON(http.StatusInternalServerError, audit.ErrorPayload(audit.ResponseUnexpected))
	}
}

// PUBLIC: FindUserHandler looks a user up in the directory
func (h *AuthHandler) FindUserHandler(c *gin.Context) {
	username := c.Param("username")

	identity, err := h.authService.FindUser(c.Request.Context(), username)
	if errors.Is(err, ldap.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Usuario no encontrado"})
		return
	}
	if err != nil {
		h.logger.Error("user lookup failed", zap.String("username", username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Error al consultar LDAP"})
		return
	}

	c.JSON(http.StatusOK, identity)
}

// PUBLIC: TestConnectionHandler binds as the service account
func (h *AuthHandler) TestConnectionHandler(c *gin.Context) {
	if err := h.authService.TestConnection(c.Request.Context()); err != nil {
		h.logger.Error("directory connection test failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Error al conectar a LDAP",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Conexión LDAP exitosa"})
}

// =================================================
// Session Handlers
// =================================================

// PRIVATE: SessionHandler returns the claims of the presented token
func (h *AuthHandler) SessionHandler(c *gin.Context) {
	claims := middleware.GetClaims(c)

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user": UserResponse{
			Username:    claims.Username,
			Email:       claims.Email,
			DisplayName: claims.DisplayName,
			Department:  claims.Department,
			Title:       claims.Title,
		},
		"expiresAt": claims.ExpiresAt.Time.UTC(),
	})
}

// PUBLIC: LogoutHandler clears the session cookie. Issued tokens stay valid
// until they expire.
func (h *AuthHandler) LogoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get(middleware.SessionUserKey) == nil {
		c.JSON(http.StatusOK, gin.H{"message": "No session."})
		return
	}

	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		h.logger.Error("failed to clear session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Failed to save session"})
		return
	}

	h.metrics.RecordLogout()
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

// =================================================
// Maintenance Handlers
// =================================================

// PRIVATE: AddOrUpdateUserHandler creates a directory entry or replaces its attributes
func (h *AuthHandler) AddOrUpdateUserHandler(c *gin.Context) {
	var req ldap.UserEntry
	if !validateAndBind(c, &req) {
		return
	}

	if err := h.authService.AddOrUpdateUser(c.Request.Context(), req); err != nil {
		h.logger.Error("failed to add or update user", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	h.logger.Info("user added or updated",
		zap.String("username", req.Username),
		zap.String("by", middleware.GetClaims(c).Username),
	)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "User added or updated successfully."})
}
