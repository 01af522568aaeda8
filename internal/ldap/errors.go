package ldap

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

var (
	// ErrNotFound indicates no directory entry matched the username
	ErrNotFound = errors.New("user not found in directory")

	// ErrInvalidCredential indicates the directory rejected the supplied secret
	ErrInvalidCredential = errors.New("invalid credentials")

	errEntryExists = errors.New("entry already exists")
)

// TransportError is a network or protocol failure talking to the directory,
// timeouts included.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ldap %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsTransportError reports whether err is, or wraps, a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// isInvalidCredentials reports whether a bind failed because the server
// refused the credential itself rather than the exchange.
func isInvalidCredentials(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultInappropriateAuthentication)
}
