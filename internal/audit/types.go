package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Audit messages stored alongside each attempt.
const (
	MessageSuccess           = "Login exitoso"
	MessageInvalidCredential = "Credenciales inválidas"
	MessageNotFound          = "Usuario no encontrado en LDAP"
	MessageUnexpected        = "Error en autenticación"
)

// Messages returned to callers and serialized into the audit payload.
const (
	ResponseRejected   = "Invalid credentials or user not found."
	ResponseUnexpected = "Unexpected error occurred during authentication."
)

// Recorder appends one audit record per authentication attempt.
type Recorder interface {
	Record(ctx context.Context, username, token, payload, message string) error
}

// Writer persists a fully formed record.
type Writer interface {
	SaveLoginInfo(ctx context.Context, record Record) error
}

// Record is one row of the login audit trail. It is never updated.
type Record struct {
	ID        string
	Username  string
	Token     string
	Payload   string
	Message   string
	CreatedAt time.Time
}

// User is the identity section of a success payload.
type User struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Department  string `json:"department"`
	Title       string `json:"title"`
}

// Payload is the JSON document stored in json_respuesta.
type Payload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

func SuccessPayload(user User) Payload {
	return Payload{Status: "success", Message: MessageSuccess, User: &user}
}

func ErrorPayload(message string) Payload {
	return Payload{Status: "error", Message: message}
}

// JSON serializes the payload. A Payload only holds strings, so encoding
// cannot fail.
func (p Payload) JSON() string {
	b, _ := json.Marshal(p)
	return string(b)
}
