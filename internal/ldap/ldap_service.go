package ldap

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Ensure LDAPService implements Service at compile time
var _ Service = (*LDAPService)(nil)

func NewLDAPService(config *Config, dialer Dialer, logger *zap.Logger) *LDAPService {
	if dialer == nil {
		dialer = NewDialer(config.Timeout, config.SkipTLSVerify)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LDAPService{
		config:   config,
		dialer:   dialer,
		resolver: NewResolver(config),
		logger:   logger.Named("ldap"),
	}
}

// Validate resolves username with the service account, then proves secret
// with a bind on a separate session. Every failure is returned as an Outcome.
func (s *LDAPService) Validate(ctx context.Context, username, secret string) Outcome {
	adminSession, err := Connect(ctx, s.config, s.dialer)
	if err != nil {
		return s.transportOutcome(username, err)
	}
	defer adminSession.Close()

	identity, entryDN, err := s.resolver.Resolve(ctx, adminSession, username)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Info("user not found in directory", zapUser(username))
		return Outcome{Status: StatusNotFound, Username: username}
	case err != nil:
		return s.transportOutcome(username, err)
	}

	// The service account's authorization must not carry over into the
	// credential check.
	adminSession.Close()

	if secret == "" {
		s.logger.Info("empty credential rejected", zapUser(username))
		return Outcome{Status: StatusInvalidCredential, Username: username}
	}

	userDN := entryDN
	if s.config.DeriveUserDN {
		userDN = s.resolver.DeriveUserDN(username)
	}

	userSession, err := Connect(ctx, s.config, s.dialer)
	if err != nil {
		return s.transportOutcome(username, err)
	}
	defer userSession.Close()

	err = userSession.Bind(userDN, secret)
	switch {
	case errors.Is(err, ErrInvalidCredential):
		s.logger.Info("invalid credentials", zapUser(username))
		return Outcome{Status: StatusInvalidCredential, Username: username}
	case err != nil:
		return s.transportOutcome(username, err)
	}

	s.logger.Info("credentials validated", zapUser(username))
	return Outcome{Status: StatusSuccess, Username: username, Identity: identity}
}

// FindUser looks username up on its own admin session.
func (s *LDAPService) FindUser(ctx context.Context, username string) (*Identity, error) {
	session, err := Connect(ctx, s.config, s.dialer)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	identity, _, err := s.resolver.Resolve(ctx, session, username)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// TestConnection dials and binds as the service account, nothing more.
func (s *LDAPService) TestConnection(ctx context.Context) error {
	session, err := s.adminSession(ctx)
	if err != nil {
		return err
	}
	session.Close()
	return nil
}

func (s *LDAPService) adminSession(ctx context.Context) (*Session, error) {
	session, err := Connect(ctx, s.config, s.dialer)
	if err != nil {
		return nil, err
	}

	if err := session.BindAdmin(); err != nil {
		session.Close()
		return nil, err
	}

	return session, nil
}

func (s *LDAPService) transportOutcome(username string, err error) Outcome {
	s.logger.Error("directory transport failure", zapUser(username), zap.Error(err))
	return Outcome{Status: StatusTransportError, Username: username, Err: err}
}

func zapUser(username string) zap.Field {
	return zap.String("username", username)
}
