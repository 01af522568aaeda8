package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/cpp-cyber/ldapauth/internal/token"
)

const (
	// SessionTokenKey holds the issued token in the session cookie.
	SessionTokenKey = "token"
	// SessionUserKey holds the authenticated username in the session cookie.
	SessionUserKey = "id"

	claimsContextKey = "claims"
)

// TokenVerifier checks a signed token and returns its claims.
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// TokenRequired accepts a token from the Authorization bearer header or,
// failing that, from the session cookie. Verified claims are stored on the
// context for handlers.
func TokenRequired(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			if v, ok := sessions.Default(c).Get(SessionTokenKey).(string); ok {
				tokenString = v
			}
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Unauthorized"})
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, token.ErrExpiredToken) {
				message = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": message})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// AdminRequired runs after TokenRequired and lets through only the listed
// usernames, compared case-insensitively. An empty list admits nobody.
func AdminRequired(adminUsers []string) gin.HandlerFunc {
	admins := make(map[string]struct{}, len(adminUsers))
	for _, username := range adminUsers {
		if username = strings.ToLower(strings.TrimSpace(username)); username != "" {
			admins[username] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Unauthorized"})
			return
		}

		if _, ok := admins[strings.ToLower(claims.Username)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "error", "message": "Admin access required"})
			return
		}

		c.Next()
	}
}

// GetClaims returns the claims stored by TokenRequired, or nil.
func GetClaims(c *gin.Context) *token.Claims {
	if v, ok := c.Get(claimsContextKey); ok {
		if claims, ok := v.(*token.Claims); ok {
			return claims
		}
	}
	return nil
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Origin")
		c.Writer.Header().Set("Cache-Control", "no-store")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
