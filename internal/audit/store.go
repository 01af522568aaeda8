package audit

import (
	"context"
	"fmt"

	"github.com/cpp-cyber/ldapauth/internal/tools"
)

const createLoginInfoTable = `CREATE TABLE IF NOT EXISTS login_info (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	username VARCHAR(255) NOT NULL,
	token TEXT NOT NULL,
	json_respuesta TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at DATETIME NOT NULL
)`

const insertLoginInfo = `INSERT INTO login_info (id, username, token, json_respuesta, message, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

// Store writes audit records to the login_info table.
type Store struct {
	db *tools.DBClient
}

func NewStore(db *tools.DBClient) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the login_info table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createLoginInfoTable); err != nil {
		return fmt.Errorf("failed to create login_info table: %w", err)
	}
	return nil
}

// SaveLoginInfo inserts record, bounded by the client's write timeout.
func (s *Store) SaveLoginInfo(ctx context.Context, record Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.db.WriteTimeout())
	defer cancel()

	_, err := s.db.ExecContext(ctx, insertLoginInfo,
		record.ID,
		record.Username,
		record.Token,
		record.Payload,
		record.Message,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save login info for %s: %w", record.Username, err)
	}
	return nil
}
