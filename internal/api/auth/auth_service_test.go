package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/cpp-cyber/ldapauth/internal/audit"
	"github.com/cpp-cyber/ldapauth/internal/ldap"
	"github.com/cpp-cyber/ldapauth/internal/token"
)

var now = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

var jdoe = &ldap.Identity{
	Username:    "jdoe",
	Email:       "jdoe@co.com",
	DisplayName: "John Doe",
	Department:  "IT",
	Title:       "Engineer",
}

// fakeDirectory answers Validate from a fixed table of users.
type fakeDirectory struct {
	users     map[string]*ldap.Identity
	passwords map[string]string
	transport error
	calls     int
}

func (f *fakeDirectory) Validate(_ context.Context, username, secret string) ldap.Outcome {
	f.calls++
	if f.transport != nil {
		return ldap.Outcome{Status: ldap.StatusTransportError, Username: username, Err: f.transport}
	}
	identity, ok := f.users[username]
	if !ok {
		return ldap.Outcome{Status: ldap.StatusNotFound, Username: username}
	}
	if secret == "" || f.passwords[username] != secret {
		return ldap.Outcome{Status: ldap.StatusInvalidCredential, Username: username}
	}
	return ldap.Outcome{Status: ldap.StatusSuccess, Username: username, Identity: identity}
}

func (f *fakeDirectory) FindUser(_ context.Context, username string) (*ldap.Identity, error) {
	if identity, ok := f.users[username]; ok {
		return identity, nil
	}
	return nil, ldap.ErrNotFound
}

func (f *fakeDirectory) AddOrUpdateUser(context.Context, ldap.UserEntry) error { return nil }

func (f *fakeDirectory) TestConnection(context.Context) error { return f.transport }

type recordedAttempt struct {
	username, token, payload, message string
}

type fakeRecorder struct {
	attempts []recordedAttempt
	err      error
}

func (f *fakeRecorder) Record(_ context.Context, username, token, payload, message string) error {
	f.attempts = append(f.attempts, recordedAttempt{username, token, payload, message})
	return f.err
}

type failingIssuer struct{}

func (failingIssuer) Issue(token.Subject, time.Time) (token.Token, error) {
	return token.Token{}, token.ErrTokenGeneration
}

func (failingIssuer) Verify(string) (*token.Claims, error) { return nil, token.ErrInvalidToken }

type countingMetrics struct {
	attempts      map[string]int
	tokens        int
	auditFailures int
}

func (c *countingMetrics) RecordAuthAttempt(status string, _ time.Duration) {
	if c.attempts == nil {
		c.attempts = map[string]int{}
	}
	c.attempts[status]++
}
func (c *countingMetrics) RecordTokenIssued()       { c.tokens++ }
func (c *countingMetrics) RecordAuditWriteFailure() { c.auditFailures++ }
func (c *countingMetrics) RecordLogout()            {}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:     map[string]*ldap.Identity{"jdoe": jdoe},
		passwords: map[string]string{"jdoe": "correct-horse"},
	}
}

func newIssuer() *token.Issuer {
	return token.NewIssuer(&token.Config{
		Key:      "test-secret-key-for-jwt-signing",
		Issuer:   "ldapauth",
		Audience: "ldapauth-clients",
	}, clocktesting.NewFakeClock(now))
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		password    string
		directory   func() *fakeDirectory
		wantStatus  ldap.Status
		wantMessage string
		wantPayload string
	}{
		{
			name:        "success",
			username:    "jdoe",
			password:    "correct-horse",
			directory:   newDirectory,
			wantStatus:  ldap.StatusSuccess,
			wantMessage: "Login exitoso",
			wantPayload: `{"status":"success","message":"Login exitoso","user":{"username":"jdoe","email":"jdoe@co.com","displayName":"John Doe","department":"IT","title":"Engineer"}}`,
		},
		{
			name:        "unknown user",
			username:    "ghost",
			password:    "whatever",
			directory:   newDirectory,
			wantStatus:  ldap.StatusNotFound,
			wantMessage: "Usuario no encontrado en LDAP",
			wantPayload: `{"status":"error","message":"Invalid credentials or user not found."}`,
		},
		{
			name:        "wrong password",
			username:    "jdoe",
			password:    "wrong",
			directory:   newDirectory,
			wantStatus:  ldap.StatusInvalidCredential,
			wantMessage: "Credenciales inválidas",
			wantPayload: `{"status":"error","message":"Invalid credentials or user not found."}`,
		},
		{
			name:     "directory unreachable",
			username: "jdoe",
			password: "correct-horse",
			directory: func() *fakeDirectory {
				d := newDirectory()
				d.transport = &ldap.TransportError{Op: "connect", Err: errors.New("i/o timeout")}
				return d
			},
			wantStatus:  ldap.StatusTransportError,
			wantMessage: "ldap connect failed: i/o timeout",
			wantPayload: `{"status":"error","message":"ldap connect failed: i/o timeout"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &fakeRecorder{}
			counters := &countingMetrics{}
			issuer := newIssuer()
			service := NewAuthService(tt.directory(), issuer, recorder, counters, clocktesting.NewFakeClock(now), nil)

			outcome, err := service.Authenticate(context.Background(), tt.username, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, outcome.Status)

			require.Len(t, recorder.attempts, 1, "exactly one audit record per attempt")
			attempt := recorder.attempts[0]
			assert.Equal(t, tt.username, attempt.username)
			assert.Equal(t, tt.wantMessage, attempt.message)
			assert.JSONEq(t, tt.wantPayload, attempt.payload)
			assert.Equal(t, 1, counters.attempts[string(tt.wantStatus)])

			if tt.wantStatus != ldap.StatusSuccess {
				assert.Empty(t, outcome.Token)
				assert.Empty(t, attempt.token)
				assert.Zero(t, counters.tokens)
				return
			}

			require.NotEmpty(t, outcome.Token)
			assert.Equal(t, outcome.Token, attempt.token)
			assert.Equal(t, 1, counters.tokens)

			claims, err := issuer.Verify(outcome.Token)
			require.NoError(t, err)
			assert.Equal(t, "jdoe", claims.Username)
			assert.Equal(t, "jdoe@co.com", claims.Email)
			assert.Equal(t, "John Doe", claims.DisplayName)
			assert.Equal(t, "IT", claims.Department)
			assert.Equal(t, "Engineer", claims.Title)
			assert.Equal(t, now.Add(time.Hour), claims.ExpiresAt.Time.UTC())
		})
	}
}

func TestAuthenticate_AuditFailureKeepsSuccess(t *testing.T) {
	recorder := &fakeRecorder{err: &audit.StorageError{Err: errors.New("database is locked")}}
	counters := &countingMetrics{}
	core, logs := observer.New(zapcore.InfoLevel)

	service := NewAuthService(newDirectory(), newIssuer(), recorder, counters, clocktesting.NewFakeClock(now), zap.New(core))

	outcome, err := service.Authenticate(context.Background(), "jdoe", "correct-horse")
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	assert.NotEmpty(t, outcome.Token)
	assert.Equal(t, 1, counters.auditFailures)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage("failed to record login attempt").Len())
}

func TestAuthenticate_SigningFailure(t *testing.T) {
	recorder := &fakeRecorder{}
	service := NewAuthService(newDirectory(), failingIssuer{}, recorder, nil, nil, nil)

	outcome, err := service.Authenticate(context.Background(), "jdoe", "correct-horse")
	require.ErrorIs(t, err, token.ErrTokenGeneration)
	assert.False(t, outcome.Succeeded())
	assert.Empty(t, outcome.Token)

	require.Len(t, recorder.attempts, 1)
	assert.Equal(t, "Error en autenticación", recorder.attempts[0].message)
	assert.Empty(t, recorder.attempts[0].token)

	var payload audit.Payload
	require.NoError(t, json.Unmarshal([]byte(recorder.attempts[0].payload), &payload))
	assert.Equal(t, "error", payload.Status)
	assert.Equal(t, "Unexpected error occurred during authentication.", payload.Message)
}

func TestAuthenticate_DistinctUsersGetDistinctTokens(t *testing.T) {
	directory := newDirectory()
	directory.users["asmith"] = &ldap.Identity{Username: "asmith"}
	directory.passwords["asmith"] = "correct-horse"

	service := NewAuthService(directory, newIssuer(), &fakeRecorder{}, nil, clocktesting.NewFakeClock(now), nil)

	first, err := service.Authenticate(context.Background(), "jdoe", "correct-horse")
	require.NoError(t, err)
	second, err := service.Authenticate(context.Background(), "asmith", "correct-horse")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
}

func TestFindUser(t *testing.T) {
	service := NewAuthService(newDirectory(), newIssuer(), &fakeRecorder{}, nil, nil, nil)

	identity, err := service.FindUser(context.Background(), "jdoe")
	require.NoError(t, err)
	assert.Equal(t, jdoe, identity)

	_, err = service.FindUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, ldap.ErrNotFound)
}
