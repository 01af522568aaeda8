package ldap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ldapv3 "github.com/go-ldap/ldap/v3"
)

var userAttributes = []string{"uid", "mail", "cn", "department", "title"}

// Resolver finds the directory entry for a username.
type Resolver struct {
	config *Config
}

func NewResolver(config *Config) *Resolver {
	return &Resolver{config: config}
}

// =================================================
// Public Functions
// =================================================

// Resolve binds session as the service account and searches the user
// subtree for uid=username. It returns the projected identity and the DN of
// the matched entry. No match yields ErrNotFound, anything else a
// *TransportError.
func (r *Resolver) Resolve(ctx context.Context, session *Session, username string) (*Identity, string, error) {
	if strings.TrimSpace(username) == "" {
		return nil, "", ErrNotFound
	}

	if err := session.BindAdmin(); err != nil {
		return nil, "", err
	}

	entry, err := session.Search(ctx, r.config.UserSearchBase, UserFilter(username), userAttributes)
	if err != nil {
		return nil, "", err
	}

	return projectIdentity(entry, username), entry.DN, nil
}

// UserFilter builds the uid equality filter with username escaped.
func UserFilter(username string) string {
	return fmt.Sprintf("(uid=%s)", ldapv3.EscapeFilter(username))
}

// DeriveUserDN builds uid=<username>,<base> without a directory lookup.
func (r *Resolver) DeriveUserDN(username string) string {
	return fmt.Sprintf("uid=%s,%s", ldapv3.EscapeDN(username), r.config.UserSearchBase)
}

// AddOrUpdateUser adds an inetOrgPerson under the user search base, or
// replaces its attributes when the entry already exists.
func (s *LDAPService) AddOrUpdateUser(ctx context.Context, entry UserEntry) error {
	if strings.TrimSpace(entry.Username) == "" {
		return fmt.Errorf("username cannot be empty")
	}

	session, err := s.adminSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	userDN := s.resolver.DeriveUserDN(entry.Username)

	err = session.add(buildAddRequest(userDN, entry))
	if err == nil {
		s.logger.Info("directory entry added", zapUser(entry.Username))
		return nil
	}
	if !errors.Is(err, errEntryExists) {
		return err
	}

	if err := session.modify(buildModifyRequest(userDN, entry)); err != nil {
		return err
	}

	s.logger.Info("directory entry updated", zapUser(entry.Username))
	return nil
}

// =================================================
// Private Functions
// =================================================

func projectIdentity(entry *ldapv3.Entry, username string) *Identity {
	identity := &Identity{
		Username:    entry.GetEqualFoldAttributeValue("uid"),
		Email:       entry.GetEqualFoldAttributeValue("mail"),
		DisplayName: entry.GetEqualFoldAttributeValue("cn"),
		Department:  entry.GetEqualFoldAttributeValue("department"),
		Title:       entry.GetEqualFoldAttributeValue("title"),
	}
	if identity.Username == "" {
		identity.Username = username
	}
	return identity
}

func buildAddRequest(userDN string, entry UserEntry) *ldapv3.AddRequest {
	addReq := ldapv3.NewAddRequest(userDN, nil)

	addReq.Attribute("objectClass", []string{"top", "person", "organizationalPerson", "inetOrgPerson"})
	addReq.Attribute("uid", []string{entry.Username})
	addReq.Attribute("cn", []string{firstNonEmpty(entry.DisplayName, entry.Username)})
	addReq.Attribute("sn", []string{firstNonEmpty(entry.Surname, entry.Username)})

	if entry.Password != "" {
		addReq.Attribute("userPassword", []string{entry.Password})
	}
	if entry.Email != "" {
		addReq.Attribute("mail", []string{entry.Email})
	}
	if entry.Department != "" {
		addReq.Attribute("department", []string{entry.Department})
	}
	if entry.Title != "" {
		addReq.Attribute("title", []string{entry.Title})
	}

	return addReq
}

func buildModifyRequest(userDN string, entry UserEntry) *ldapv3.ModifyRequest {
	modifyReq := ldapv3.NewModifyRequest(userDN, nil)

	if entry.DisplayName != "" {
		modifyReq.Replace("cn", []string{entry.DisplayName})
	}
	if entry.Surname != "" {
		modifyReq.Replace("sn", []string{entry.Surname})
	}
	if entry.Email != "" {
		modifyReq.Replace("mail", []string{entry.Email})
	}
	if entry.Department != "" {
		modifyReq.Replace("department", []string{entry.Department})
	}
	if entry.Title != "" {
		modifyReq.Replace("title", []string{entry.Title})
	}
	if entry.Password != "" {
		modifyReq.Replace("userPassword", []string{entry.Password})
	}

	return modifyReq
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
