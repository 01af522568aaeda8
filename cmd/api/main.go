package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/cpp-cyber/ldapauth/internal/api/auth"
	"github.com/cpp-cyber/ldapauth/internal/api/handlers"
	"github.com/cpp-cyber/ldapauth/internal/api/middleware"
	"github.com/cpp-cyber/ldapauth/internal/api/routes"
	"github.com/cpp-cyber/ldapauth/internal/audit"
	"github.com/cpp-cyber/ldapauth/internal/ldap"
	"github.com/cpp-cyber/ldapauth/internal/metrics"
	"github.com/cpp-cyber/ldapauth/internal/token"
	"github.com/cpp-cyber/ldapauth/internal/tools"
)

// Config holds the HTTP server configuration
type Config struct {
	Port            string        `envconfig:"PORT" default:":8080"`
	SessionSecret   string        `envconfig:"SESSION_SECRET" required:"true"`
	CORSOrigin      string        `envconfig:"CORS_ORIGIN" default:"http://localhost:3000"`
	MetricsEnabled  bool          `envconfig:"METRICS_ENABLED" default:"true"`
	AuditBufferSize int           `envconfig:"AUDIT_BUFFER_SIZE" default:"1000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	SecureCookies   bool          `envconfig:"SESSION_SECURE" default:"false"`
	AdminUsers      []string      `envconfig:"ADMIN_USERS"`
}

func (c *Config) Validate() error {
	switch {
	case len(c.SessionSecret) < 32:
		return &tools.ConfigError{Field: "SESSION_SECRET", Reason: "must be at least 32 bytes"}
	case c.AuditBufferSize <= 0:
		return &tools.ConfigError{Field: "AUDIT_BUFFER_SIZE", Reason: "must be positive"}
	}
	return nil
}

// init the environment
func init() {
	_ = godotenv.Load()
}

func main() {
	logConfig, err := tools.LoadLogConfig()
	if err != nil {
		log.Fatalf("Failed to load logging configuration: %v", err)
	}
	logger, err := tools.NewLogger(logConfig)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}
	var rateLimitConfig middleware.RateLimitConfig
	if err := envconfig.Process("", &rateLimitConfig); err != nil {
		return err
	}
	if err := rateLimitConfig.Validate(); err != nil {
		return err
	}

	ldapConfig, err := ldap.LoadConfig()
	if err != nil {
		return err
	}
	tokenConfig, err := token.LoadConfig()
	if err != nil {
		return err
	}
	dbConfig, err := tools.LoadDatabaseConfig()
	if err != nil {
		return err
	}

	db, err := tools.NewDBClient(dbConfig, logger)
	if err != nil {
		return err
	}
	defer db.Disconnect()

	store := audit.NewStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		return err
	}

	metricsRecorder := metrics.Init(config.MetricsEnabled)

	auditSink := audit.NewAsyncSink(audit.NewSink(store, clock.RealClock{}), config.AuditBufferSize, logger,
		func(error) { metricsRecorder.RecordAuditWriteFailure() })

	ldapService := ldap.NewLDAPService(ldapConfig, nil, logger)
	issuer := token.NewIssuer(tokenConfig, clock.RealClock{})
	authService := auth.NewAuthService(ldapService, issuer, auditSink, metricsRecorder, clock.RealClock{}, logger)

	loginLimiter, closeLimiter, err := middleware.NewRateLimiter(rateLimitConfig)
	if err != nil {
		return err
	}
	defer closeLimiter()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORSMiddleware(config.CORSOrigin))
	r.Use(metrics.HTTPMetricsMiddleware(metricsRecorder))

	sessionStore := cookie.NewStore([]byte(config.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(token.Validity.Seconds()),
		HttpOnly: true,
		Secure:   config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("session", sessionStore))

	authHandler := handlers.NewAuthHandler(authService, metricsRecorder, logger)
	routes.RegisterRoutes(r, authHandler, routes.Options{
		Verifier:       authService,
		LoginLimiter:   loginLimiter,
		Database:       db,
		AdminUsers:     config.AdminUsers,
		MetricsEnabled: config.MetricsEnabled,
	})

	server := &http.Server{
		Addr:              config.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", config.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := auditSink.Shutdown(ctx); err != nil {
		logger.Error("audit queue did not drain", zap.Error(err))
	}
	return nil
}
