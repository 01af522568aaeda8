package tools

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	maxRetries = 2
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver       string        `envconfig:"DB_DRIVER" default:"mysql"`
	Host         string        `envconfig:"DB_HOST"`
	Port         string        `envconfig:"DB_PORT" default:"3306"`
	User         string        `envconfig:"DB_USER"`
	Password     string        `envconfig:"DB_PASSWORD"`
	Name         string        `envconfig:"DB_NAME"`
	Path         string        `envconfig:"DB_PATH" default:"ldapauth.db"`
	WriteTimeout time.Duration `envconfig:"DB_WRITE_TIMEOUT" default:"5s"`
}

func LoadDatabaseConfig() (*DatabaseConfig, error) {
	var config DatabaseConfig
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process database configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverMySQL:
		switch {
		case c.Host == "":
			return &ConfigError{Field: "DB_HOST", Reason: "is required for mysql"}
		case c.User == "":
			return &ConfigError{Field: "DB_USER", Reason: "is required for mysql"}
		case c.Name == "":
			return &ConfigError{Field: "DB_NAME", Reason: "is required for mysql"}
		}
	case DriverSQLite:
		if c.Path == "" {
			return &ConfigError{Field: "DB_PATH", Reason: "is required for sqlite"}
		}
	default:
		return &ConfigError{Field: "DB_DRIVER", Reason: fmt.Sprintf("%q is not mysql or sqlite", c.Driver)}
	}
	if c.WriteTimeout <= 0 {
		return &ConfigError{Field: "DB_WRITE_TIMEOUT", Reason: "must be positive"}
	}
	return nil
}

// DSN builds the data source name for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}

	mysqlConfig := mysql.NewConfig()
	mysqlConfig.User = c.User
	mysqlConfig.Passwd = c.Password
	mysqlConfig.Net = "tcp"
	mysqlConfig.Addr = net.JoinHostPort(c.Host, c.Port)
	mysqlConfig.DBName = c.Name
	mysqlConfig.ParseTime = true
	mysqlConfig.Loc = time.UTC
	mysqlConfig.Timeout = c.WriteTimeout
	return mysqlConfig.FormatDSN()
}

// DBClient wraps a database connection and reconnects on connection errors
type DBClient struct {
	db        *sql.DB
	config    *DatabaseConfig
	logger    *zap.Logger
	mutex     sync.RWMutex
	connected bool
}

// NewDBClient opens and pings the configured database
func NewDBClient(config *DatabaseConfig, logger *zap.Logger) (*DBClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &DBClient{
		config: config,
		logger: logger.Named("database"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.WriteTimeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return client, nil
}

// Connect establishes connection to the database
func (c *DBClient) Connect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	db, err := c.open(ctx)
	if err != nil {
		c.connected = false
		return err
	}

	c.db = db
	c.connected = true
	c.logger.Info("connected to database", zap.String("driver", c.config.Driver))
	return nil
}

// Disconnect closes the database connection
func (c *DBClient) Disconnect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.db == nil {
		c.connected = false
		return nil
	}

	err := c.db.Close()
	c.connected = false
	return err
}

// WriteTimeout bounds a single write issued through the client.
func (c *DBClient) WriteTimeout() time.Duration {
	return c.config.WriteTimeout
}

// Driver returns the configured driver name.
func (c *DBClient) Driver() string {
	return c.config.Driver
}

// ExecContext executes a statement, retrying on connection errors
func (c *DBClient) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := c.executeWithRetry(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// QueryContext executes a query that returns rows, retrying on connection errors
func (c *DBClient) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := c.executeWithRetry(ctx, func(db *sql.DB) error {
		res, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows = res
		return nil
	})
	return rows, err
}

// HealthCheck performs a simple query to verify the connection is working
func (c *DBClient) HealthCheck(ctx context.Context) error {
	return c.executeWithRetry(ctx, func(db *sql.DB) error {
		var result int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	})
}

// IsConnected returns the current connection status
func (c *DBClient) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.connected
}

func (c *DBClient) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(c.config.Driver, c.config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if c.config.Driver == DriverSQLite {
		// SQLite allows one writer, and every :memory: connection is its own database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	}
	db.SetConnMaxLifetime(0)

	return db, nil
}

// isConnectionError checks if an error indicates a connection problem
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	errorMsg := strings.ToLower(err.Error())
	return strings.Contains(errorMsg, "connection") ||
		strings.Contains(errorMsg, "broken pipe") ||
		strings.Contains(errorMsg, "network") ||
		strings.Contains(errorMsg, "eof") ||
		strings.Contains(errorMsg, "server has gone away")
}

func (c *DBClient) reconnect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
	c.connected = false

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
	}

	db, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconnect to database: %w", err)
	}

	c.db = db
	c.connected = true
	c.logger.Warn("reconnected to database")
	return nil
}

// executeWithRetry runs operation, reconnecting and retrying on connection
// errors until maxRetries is exhausted or ctx is done.
func (c *DBClient) executeWithRetry(ctx context.Context, operation func(*sql.DB) error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		c.mutex.RLock()
		db := c.db
		connected := c.connected
		c.mutex.RUnlock()

		if db == nil || !connected {
			if err := c.reconnect(ctx); err != nil {
				lastErr = err
				continue
			}
			c.mutex.RLock()
			db = c.db
			c.mutex.RUnlock()
		}

		err := operation(db)
		if err == nil {
			return nil
		}

		lastErr = err
		if !isConnectionError(err) {
			return err
		}

		c.logger.Warn("database connection error, retrying", zap.Int("attempt", attempt+1), zap.Error(err))

		c.mutex.Lock()
		c.connected = false
		c.mutex.Unlock()
	}

	return fmt.Errorf("database operation failed after %d attempts, last error: %w", maxRetries+1, lastErr)
}
