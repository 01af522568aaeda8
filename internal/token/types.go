package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Validity is how long an issued token stays valid.
const Validity = time.Hour

type Config struct {
	Key      string `envconfig:"JWT_KEY" required:"true"`
	Issuer   string `envconfig:"JWT_ISSUER" required:"true"`
	Audience string `envconfig:"JWT_AUDIENCE" required:"true"`
}

// Subject is the identity a token is issued for.
type Subject struct {
	Username    string
	Email       string
	DisplayName string
	Department  string
	Title       string
}

// Claims is the payload of an issued token. The username doubles as the
// registered subject claim.
type Claims struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Department  string `json:"department"`
	Title       string `json:"title"`
	jwt.RegisteredClaims
}

// Token is a signed token and the window it is valid for.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
