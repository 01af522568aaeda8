package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/cpp-cyber/ldapauth/internal/audit"
	"github.com/cpp-cyber/ldapauth/internal/ldap"
	"github.com/cpp-cyber/ldapauth/internal/metrics"
	"github.com/cpp-cyber/ldapauth/internal/token"
)

// =================================================
// Auth Service Interface
// =================================================

type Service interface {
	// Authentication
	Authenticate(ctx context.Context, username, password string) (ldap.Outcome, error)
	Verify(tokenString string) (*token.Claims, error)

	// Directory
	FindUser(ctx context.Context, username string) (*ldap.Identity, error)
	AddOrUpdateUser(ctx context.Context, entry ldap.UserEntry) error

	// Health and Connection
	TestConnection(ctx context.Context) error
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Issue(subject token.Subject, now time.Time) (token.Token, error)
	Verify(tokenString string) (*token.Claims, error)
}

type AuthService struct {
	ldapService ldap.Service
	issuer      TokenIssuer
	audit       audit.Recorder
	metrics     metrics.Recorder
	clock       clock.PassiveClock
	logger      *zap.Logger
}
