package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
	"github.com/kelseyhightower/envconfig"

	"github.com/cpp-cyber/ldapauth/internal/tools"
)

const (
	searchTimeLimitSeconds = 5

	// context-specific tag of the referral URIs in an LDAPResult
	referralTag ber.Tag = 3
)

func LoadConfig() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process LDAP configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Host) == "":
		return &tools.ConfigError{Field: "LDAP_HOST", Reason: "is required"}
	case c.Port <= 0 || c.Port > 65535:
		return &tools.ConfigError{Field: "LDAP_PORT", Reason: fmt.Sprintf("%d is out of range", c.Port)}
	case c.AdminDN == "":
		return &tools.ConfigError{Field: "LDAP_ADMIN_DN", Reason: "is required"}
	case c.AdminPassword == "":
		return &tools.ConfigError{Field: "LDAP_ADMIN_PASSWORD", Reason: "is required"}
	case c.UserSearchBase == "":
		return &tools.ConfigError{Field: "LDAP_USER_SEARCH_BASE", Reason: "is required"}
	case c.Timeout <= 0:
		return &tools.ConfigError{Field: "LDAP_TIMEOUT", Reason: "must be positive"}
	case c.MaxReferralHops < 0:
		return &tools.ConfigError{Field: "LDAP_MAX_REFERRAL_HOPS", Reason: "must not be negative"}
	}
	return nil
}

// Address returns host:port, keeping an explicit port in Host.
func (c *Config) Address() (string, error) {
	return hostAndPortWithDefaultPort(c.Host, strconv.Itoa(c.Port))
}

// =================================================
// Dialing
// =================================================

// NewDialer returns the production Dialer, bounded by timeout for both the
// dial and every request sent on the resulting connection.
func NewDialer(timeout time.Duration, skipTLSVerify bool) Dialer {
	return &netDialer{timeout: timeout, skipTLSVerify: skipTLSVerify}
}

type netDialer struct {
	timeout       time.Duration
	skipTLSVerify bool
}

func (d *netDialer) Dial(ctx context.Context, hostAndPort string, useTLS bool) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	netDialer := &net.Dialer{Timeout: d.timeout}

	var (
		c   net.Conn
		err error
	)
	if useTLS {
		tlsDialer := &tls.Dialer{
			NetDialer: netDialer,
			Config: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: d.skipTLSVerify,
			},
		}
		c, err = tlsDialer.DialContext(ctx, "tcp", hostAndPort)
	} else {
		c, err = netDialer.DialContext(ctx, "tcp", hostAndPort)
	}
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	conn := ldap.NewConn(c, useTLS)
	conn.SetTimeout(d.timeout)
	conn.Start()
	return &ldapConn{conn: conn}, nil
}

// ldapConn adapts *ldap.Conn to Conn.
type ldapConn struct {
	conn *ldap.Conn
}

func (l *ldapConn) Bind(username, password string) error {
	return l.conn.Bind(username, password)
}

func (l *ldapConn) Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return l.conn.Search(searchRequest)
}

func (l *ldapConn) Add(addRequest *ldap.AddRequest) error {
	return l.conn.Add(addRequest)
}

func (l *ldapConn) Modify(modifyRequest *ldap.ModifyRequest) error {
	return l.conn.Modify(modifyRequest)
}

func (l *ldapConn) Close() {
	l.conn.Close()
}

// Adds the default port if hostAndPort did not already include a port.
func hostAndPortWithDefaultPort(hostAndPort string, defaultPort string) (string, error) {
	host, port, err := net.SplitHostPort(hostAndPort)
	if err != nil {
		if strings.HasSuffix(err.Error(), ": missing port in address") {
			host = hostAndPort
			port = defaultPort
		} else {
			return "", err
		}
	}
	switch {
	case port != "" && strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]"):
		return host + ":" + port, nil
	case port != "":
		return net.JoinHostPort(host, port), nil
	default:
		return host, nil
	}
}

// =================================================
// Sessions
// =================================================

// Connect opens a new, unbound Session against the configured server.
func Connect(ctx context.Context, config *Config, dialer Dialer) (*Session, error) {
	address, err := config.Address()
	if err != nil {
		return nil, transportError("connect", err)
	}
	return connectTo(ctx, config, dialer, address, config.UseSSL, 0)
}

func connectTo(ctx context.Context, config *Config, dialer Dialer, address string, useTLS bool, hops int) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError("connect", err)
	}

	conn, err := dialer.Dial(ctx, address, useTLS)
	if err != nil {
		return nil, transportError("connect", fmt.Errorf("dialing %s: %w", address, err))
	}

	return &Session{
		conn:   conn,
		config: config,
		dialer: dialer,
		hops:   hops,
	}, nil
}

// Bind authenticates the session as dn. A refused credential yields
// ErrInvalidCredential; everything else is a *TransportError.
func (s *Session) Bind(dn, secret string) error {
	if s.conn == nil {
		return transportError("bind", fmt.Errorf("session is closed"))
	}

	if err := s.conn.Bind(dn, secret); err != nil {
		if isInvalidCredentials(err) {
			return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
		return transportError("bind", err)
	}

	return nil
}

// BindAdmin binds with the configured service account.
func (s *Session) BindAdmin() error {
	err := s.Bind(s.config.AdminDN, s.config.AdminPassword)
	if errors.Is(err, ErrInvalidCredential) {
		// A refused service account is an infrastructure problem, never an
		// end-user credential failure.
		return transportError("admin bind", fmt.Errorf("service account rejected: %v", err))
	}
	return err
}

// Search runs a subtree search under base and returns the first entry.
// Search result references are followed on fresh admin-bound sessions.
func (s *Session) Search(ctx context.Context, base, filter string, attributes []string) (*ldap.Entry, error) {
	if s.conn == nil {
		return nil, transportError("search", fmt.Errorf("session is closed"))
	}
	if err := ctx.Err(); err != nil {
		return nil, transportError("search", err)
	}

	searchRequest := ldap.NewSearchRequest(
		base,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1,
		searchTimeLimitSeconds,
		false,
		filter,
		attributes,
		nil,
	)

	result, err := s.conn.Search(searchRequest)
	switch {
	case err == nil:
	case ldap.IsErrorWithCode(err, ldap.LDAPResultReferral):
		referrals := referralsFromError(err)
		if len(referrals) == 0 {
			return nil, transportError("search", err)
		}
		return s.followReferrals(ctx, referrals, base, filter, attributes)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && result != nil:
		// A size limit hit still carries the first entry.
	default:
		return nil, transportError("search", err)
	}

	if len(result.Entries) > 0 {
		return result.Entries[0], nil
	}

	if len(result.Referrals) > 0 {
		return s.followReferrals(ctx, result.Referrals, base, filter, attributes)
	}

	return nil, ErrNotFound
}

func (s *Session) followReferrals(ctx context.Context, referrals []string, base, filter string, attributes []string) (*ldap.Entry, error) {
	if s.hops >= s.config.MaxReferralHops {
		return nil, ErrNotFound
	}

	for _, referral := range referrals {
		address, useTLS, referralBase, err := parseReferral(referral)
		if err != nil {
			return nil, transportError("referral", err)
		}
		if !s.referralAllowed(address, useTLS) {
			continue
		}
		if referralBase == "" {
			referralBase = base
		}

		entry, err := s.searchReferral(ctx, address, useTLS, referralBase, filter, attributes)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, ErrNotFound
}

func (s *Session) searchReferral(ctx context.Context, address string, useTLS bool, base, filter string, attributes []string) (*ldap.Entry, error) {
	referred, err := connectTo(ctx, s.config, s.dialer, address, useTLS, s.hops+1)
	if err != nil {
		return nil, err
	}
	defer referred.Close()

	if err := referred.BindAdmin(); err != nil {
		return nil, err
	}
	return referred.Search(ctx, base, filter, attributes)
}

// referralAllowed reports whether address may receive the service account
// credentials. Only the configured host and LDAP_REFERRAL_HOSTS qualify, and
// a TLS configuration never follows a plaintext referral.
func (s *Session) referralAllowed(address string, useTLS bool) bool {
	if s.config.UseSSL && !useTLS {
		return false
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}

	for _, allowed := range append([]string{s.config.Host}, s.config.ReferralHosts...) {
		allowed = strings.TrimSpace(allowed)
		if h, _, err := net.SplitHostPort(allowed); err == nil {
			allowed = h
		}
		allowed = strings.TrimSuffix(strings.TrimPrefix(allowed, "["), "]")
		if allowed != "" && strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

// referralsFromError extracts the referral URIs of a SearchResultDone
// carrying result code 10. go-ldap keeps them only in the raw packet.
func referralsFromError(err error) []string {
	var ldapErr *ldap.Error
	if !errors.As(err, &ldapErr) || ldapErr.Packet == nil || len(ldapErr.Packet.Children) < 2 {
		return nil
	}

	var referrals []string
	for _, child := range ldapErr.Packet.Children[1].Children {
		if child.ClassType != ber.ClassContext || child.Tag != referralTag {
			continue
		}
		for _, uri := range child.Children {
			if value, ok := uri.Value.(string); ok && value != "" {
				referrals = append(referrals, value)
			}
		}
	}
	return referrals
}

// parseReferral splits an LDAP URL such as ldap://host:389/ou=x,dc=y.
func parseReferral(referral string) (string, bool, string, error) {
	u, err := url.Parse(referral)
	if err != nil {
		return "", false, "", fmt.Errorf("invalid referral %q: %w", referral, err)
	}

	var useTLS bool
	defaultPort := ldap.DefaultLdapPort
	switch strings.ToLower(u.Scheme) {
	case "ldap":
	case "ldaps":
		useTLS = true
		defaultPort = ldap.DefaultLdapsPort
	default:
		return "", false, "", fmt.Errorf("unsupported referral scheme in %q", referral)
	}

	if u.Host == "" {
		return "", false, "", fmt.Errorf("referral %q has no host", referral)
	}

	address, err := hostAndPortWithDefaultPort(u.Host, defaultPort)
	if err != nil {
		return "", false, "", fmt.Errorf("invalid referral host %q: %w", u.Host, err)
	}

	return address, useTLS, strings.TrimPrefix(u.Path, "/"), nil
}

func (s *Session) add(addRequest *ldap.AddRequest) error {
	if s.conn == nil {
		return transportError("add", fmt.Errorf("session is closed"))
	}
	if err := s.conn.Add(addRequest); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
			return errEntryExists
		}
		return transportError("add", err)
	}
	return nil
}

func (s *Session) modify(modifyRequest *ldap.ModifyRequest) error {
	if s.conn == nil {
		return transportError("modify", fmt.Errorf("session is closed"))
	}
	if err := s.conn.Modify(modifyRequest); err != nil {
		return transportError("modify", err)
	}
	return nil
}

// Close releases the connection. It is safe to call more than once.
func (s *Session) Close() {
	if s.conn == nil {
		return
	}
	s.conn.Close()
	s.conn = nil
}
