package ldap

import (
	"context"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// =================================================
// LDAP Service Interface
// =================================================

type Service interface {
	// Authentication
	Validate(ctx context.Context, username, secret string) Outcome
	FindUser(ctx context.Context, username string) (*Identity, error)

	// Maintenance
	AddOrUpdateUser(ctx context.Context, entry UserEntry) error

	// Connection Management
	TestConnection(ctx context.Context) error
}

type LDAPService struct {
	config   *Config
	dialer   Dialer
	resolver *Resolver
	logger   *zap.Logger
}

// =================================================
// LDAP Client
// =================================================

type Config struct {
	Host            string        `envconfig:"LDAP_HOST" required:"true"`
	Port            int           `envconfig:"LDAP_PORT" default:"389"`
	UseSSL          bool          `envconfig:"LDAP_USE_SSL" default:"false"`
	AdminDN         string        `envconfig:"LDAP_ADMIN_DN" required:"true"`
	AdminPassword   string        `envconfig:"LDAP_ADMIN_PASSWORD" required:"true"`
	UserSearchBase  string        `envconfig:"LDAP_USER_SEARCH_BASE" required:"true"`
	SkipTLSVerify   bool          `envconfig:"LDAP_SKIP_TLS_VERIFY" default:"false"`
	Timeout         time.Duration `envconfig:"LDAP_TIMEOUT" default:"5s"`
	DeriveUserDN    bool          `envconfig:"LDAP_DERIVE_USER_DN" default:"false"`
	MaxReferralHops int           `envconfig:"LDAP_MAX_REFERRAL_HOPS" default:"5"`
	// Referrals are only followed to Host and to these hosts.
	ReferralHosts []string `envconfig:"LDAP_REFERRAL_HOSTS"`
}

// Conn is the subset of *ldap.Conn a Session needs.
type Conn interface {
	Bind(username, password string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(addRequest *ldap.AddRequest) error
	Modify(modifyRequest *ldap.ModifyRequest) error
	Close()
}

// Dialer opens a Conn to hostAndPort. useTLS selects LDAPS.
type Dialer interface {
	Dial(ctx context.Context, hostAndPort string, useTLS bool) (Conn, error)
}

// DialerFunc makes it easy to use a func as a Dialer.
type DialerFunc func(ctx context.Context, hostAndPort string, useTLS bool) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, hostAndPort string, useTLS bool) (Conn, error) {
	return f(ctx, hostAndPort, useTLS)
}

// Session is a single connection and bind lifecycle. It is not safe for
// concurrent use and must be closed by whoever opened it.
type Session struct {
	conn   Conn
	config *Config
	dialer Dialer
	hops   int
}

// =================================================
// Identities
// =================================================

// Identity is the projection of a directory entry. Absent attributes are
// empty strings.
type Identity struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Department  string `json:"department"`
	Title       string `json:"title"`
}

// UserEntry carries the attributes written by AddOrUpdateUser.
type UserEntry struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Surname     string `json:"surname"`
	Department  string `json:"department"`
	Title       string `json:"title"`
}

// =================================================
// Outcomes
// =================================================

type Status string

const (
	StatusSuccess           Status = "success"
	StatusNotFound          Status = "not_found"
	StatusInvalidCredential Status = "invalid_credential"
	StatusTransportError    Status = "transport_error"
)

// Outcome is the result of one authentication attempt. Exactly one Status
// is set; Identity is only present on success, Err only on transport errors.
type Outcome struct {
	Status   Status
	Username string
	Identity *Identity
	Token    string
	Err      error
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Detail is the raw error text of a transport error, empty otherwise.
func (o Outcome) Detail() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
