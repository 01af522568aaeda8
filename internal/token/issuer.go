package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kelseyhightower/envconfig"
	"k8s.io/utils/clock"

	"github.com/cpp-cyber/ldapauth/internal/tools"
)

func LoadConfig() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process token configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Key) == "":
		return &tools.ConfigError{Field: "JWT_KEY", Reason: "is required"}
	case strings.TrimSpace(c.Issuer) == "":
		return &tools.ConfigError{Field: "JWT_ISSUER", Reason: "is required"}
	case strings.TrimSpace(c.Audience) == "":
		return &tools.ConfigError{Field: "JWT_AUDIENCE", Reason: "is required"}
	}
	return nil
}

// Issuer signs tokens with HS256 and verifies them against the same key,
// issuer and audience.
type Issuer struct {
	config *Config
	clock  clock.PassiveClock
}

func NewIssuer(config *Config, clk clock.PassiveClock) *Issuer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Issuer{config: config, clock: clk}
}

// Issue signs a token for subject valid from now until now plus Validity.
// The same subject and instant always produce the same token.
func (i *Issuer) Issue(subject Subject, now time.Time) (Token, error) {
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(Validity))

	claims := Claims{
		Username:    subject.Username,
		Email:       subject.Email,
		DisplayName: subject.DisplayName,
		Department:  subject.Department,
		Title:       subject.Title,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.Username,
			Issuer:    i.config.Issuer,
			Audience:  jwt.ClaimStrings{i.config.Audience},
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.config.Key))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	return Token{
		Value:     signed,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// Verify checks the signature, method, issuer, audience and expiry of
// tokenString against the injected clock and returns its claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(i.config.Key), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithAudience(i.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !parsed.Valid || claims.Username == "" || claims.Username != claims.Subject {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
