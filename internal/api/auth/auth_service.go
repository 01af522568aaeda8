package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/cpp-cyber/ldapauth/internal/audit"
	"github.com/cpp-cyber/ldapauth/internal/ldap"
	"github.com/cpp-cyber/ldapauth/internal/metrics"
	"github.com/cpp-cyber/ldapauth/internal/token"
)

// Ensure AuthService implements Service at compile time
var _ Service = (*AuthService)(nil)

func NewAuthService(
	ldapService ldap.Service,
	issuer TokenIssuer,
	recorder audit.Recorder,
	metricsRecorder metrics.Recorder,
	clk clock.PassiveClock,
	logger *zap.Logger,
) *AuthService {
	if metricsRecorder == nil {
		metricsRecorder = metrics.NewNoopMetrics()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthService{
		ldapService: ldapService,
		issuer:      issuer,
		audit:       recorder,
		metrics:     metricsRecorder,
		clock:       clk,
		logger:      logger.Named("auth"),
	}
}

// Authenticate validates the credentials, attaches a token on success and
// writes exactly one audit record. The returned error is only set when a
// token could not be signed.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (ldap.Outcome, error) {
	start := s.clock.Now()
	outcome := s.ldapService.Validate(ctx, username, password)
	defer func() {
		s.metrics.RecordAuthAttempt(string(outcome.Status), s.clock.Since(start))
	}()

	switch outcome.Status {
	case ldap.StatusSuccess:
		issued, err := s.issuer.Issue(subjectFor(username, outcome.Identity), s.clock.Now())
		if err != nil {
			s.logger.Error("token signing failed", zap.String("username", username), zap.Error(err))
			s.record(ctx, username, "", audit.ErrorPayload(audit.ResponseUnexpected), audit.MessageUnexpected)
			outcome = ldap.Outcome{Status: ldap.StatusTransportError, Username: username, Err: err}
			return outcome, fmt.Errorf("failed to issue token for %s: %w", username, err)
		}

		outcome.Token = issued.Value
		s.metrics.RecordTokenIssued()
		s.record(ctx, username, issued.Value, audit.SuccessPayload(auditUser(username, outcome.Identity)), audit.MessageSuccess)

	case ldap.StatusNotFound:
		s.record(ctx, username, "", audit.ErrorPayload(audit.ResponseRejected), audit.MessageNotFound)

	case ldap.StatusInvalidCredential:
		s.record(ctx, username, "", audit.ErrorPayload(audit.ResponseRejected), audit.MessageInvalidCredential)

	default:
		detail := outcome.Detail()
		s.record(ctx, username, "", audit.ErrorPayload(detail), detail)
	}

	return outcome, nil
}

func (s *AuthService) Verify(tokenString string) (*token.Claims, error) {
	return s.issuer.Verify(tokenString)
}

func (s *AuthService) FindUser(ctx context.Context, username string) (*ldap.Identity, error) {
	return s.ldapService.FindUser(ctx, username)
}

func (s *AuthService) AddOrUpdateUser(ctx context.Context, entry ldap.UserEntry) error {
	return s.ldapService.AddOrUpdateUser(ctx, entry)
}

func (s *AuthService) TestConnection(ctx context.Context) error {
	return s.ldapService.TestConnection(ctx)
}

// record never fails the attempt it describes.
func (s *AuthService) record(ctx context.Context, username, tokenValue string, payload audit.Payload, message string) {
	if err := s.audit.Record(ctx, username, tokenValue, payload.JSON(), message); err != nil {
		s.metrics.RecordAuditWriteFailure()
		s.logger.Error("failed to record login attempt", zap.String("username", username), zap.Error(err))
	}
}

// The token's subject is the username the caller authenticated with, even
// when the directory stores it with different casing.
func subjectFor(username string, identity *ldap.Identity) token.Subject {
	return token.Subject{
		Username:    username,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Department:  identity.Department,
		Title:       identity.Title,
	}
}

func auditUser(username string, identity *ldap.Identity) audit.User {
	return audit.User{
		Username:    username,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Department:  identity.Department,
		Title:       identity.Title,
	}
}
