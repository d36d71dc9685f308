// Package app boots the service: database, migrations, service wiring,
// and the HTTP server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pesttrack/pesttrack/internal/audit"
	internalauth "github.com/pesttrack/pesttrack/internal/auth"
	"github.com/pesttrack/pesttrack/internal/config"
	"github.com/pesttrack/pesttrack/internal/db"
	"github.com/pesttrack/pesttrack/internal/http/api"
	"github.com/pesttrack/pesttrack/internal/ratelimit"
	"github.com/pesttrack/pesttrack/internal/security"
	internalsettings "github.com/pesttrack/pesttrack/internal/settings"
	"github.com/pesttrack/pesttrack/internal/sightings"
	"github.com/pesttrack/pesttrack/internal/users"
	"github.com/pesttrack/pesttrack/internal/validate"
)

// ConfigExists reports whether the config file is present.
func ConfigExists(configPath string) bool {
	info, errStat := os.Stat(configPath)
	return errStat == nil && !info.IsDir()
}

// EnsureConfig writes a default config file with a generated JWT secret
// when none exists.
func EnsureConfig(configPath string) error {
	if ConfigExists(configPath) {
		return nil
	}

	secret, errSecret := security.GenerateRandomString(32)
	if errSecret != nil {
		return errSecret
	}
	content := fmt.Sprintf("jwt:\n  secret: %q\n  expiry: 24h\n", secret)
	if errWrite := os.WriteFile(configPath, []byte(content), 0o600); errWrite != nil {
		return fmt.Errorf("app: write config file: %w", errWrite)
	}
	log.WithField("path", configPath).Info("wrote default config file")
	return nil
}

// openDatabase resolves the DSN, opens the database, and migrates.
func openDatabase(configPath string) (*gorm.DB, error) {
	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return nil, errDSN
	}
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}
	return conn, nil
}

// buildDeps wires every service on top of an open database connection.
func buildDeps(conn *gorm.DB, configPath string) (api.Deps, error) {
	jwtConfig, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return api.Deps{}, errJWT
	}
	tokens, errTokens := security.NewTokenIssuer(jwtConfig.Secret, jwtConfig.Expiry)
	if errTokens != nil {
		return api.Deps{}, errTokens
	}

	securityConfig := internalsettings.LoadSecurityConfig(conn)
	applySecurityOverrides(&securityConfig, config.LoadSecurityOverrides(configPath))

	limiter := ratelimit.NewMemoryLimiter(ratelimit.Settings{
		MaxAttempts:     securityConfig.MaxLoginAttempts,
		AttemptWindow:   securityConfig.AttemptWindow,
		LockoutDuration: securityConfig.LockoutDuration,
	}, nil)
	recorder := audit.NewRecorder(conn, nil)
	policy := validate.PolicyFromSecurity(securityConfig)

	return api.Deps{
		DB:        conn,
		Tokens:    tokens,
		Authority: internalauth.NewAuthority(conn, limiter, recorder, tokens, policy, nil),
		Recorder:  recorder,
		Users:     users.NewService(conn, recorder, policy),
		Sightings: sightings.NewService(conn, nil),
	}, nil
}

// applySecurityOverrides layers config-file overrides on top of the
// database-backed limits.
func applySecurityOverrides(cfg *internalsettings.SecurityConfig, overrides config.SecurityOverrides) {
	if overrides.MaxLoginAttempts > 0 {
		cfg.MaxLoginAttempts = overrides.MaxLoginAttempts
	}
	if overrides.AttemptWindowSeconds > 0 {
		cfg.AttemptWindow = time.Duration(overrides.AttemptWindowSeconds) * time.Second
	}
	if overrides.LockoutDurationSeconds > 0 {
		cfg.LockoutDuration = time.Duration(overrides.LockoutDurationSeconds) * time.Second
	}
	if overrides.MinPasswordLength > 0 {
		cfg.MinPasswordLength = overrides.MinPasswordLength
	}
	if overrides.MaxPasswordLength > 0 {
		cfg.MaxPasswordLength = overrides.MaxPasswordLength
	}
	if overrides.MinUsernameLength > 0 {
		cfg.MinUsernameLength = overrides.MinUsernameLength
	}
	if overrides.MaxUsernameLength > 0 {
		cfg.MaxUsernameLength = overrides.MaxUsernameLength
	}
}

// RunServer boots the API server and blocks until the context is
// canceled or the listener fails.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	if errEnsure := EnsureConfig(configPath); errEnsure != nil {
		return errEnsure
	}

	conn, errOpen := openDatabase(configPath)
	if errOpen != nil {
		return errOpen
	}

	deps, errDeps := buildDeps(conn, configPath)
	if errDeps != nil {
		return errDeps
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api.RegisterRoutes(router, deps)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return nil
	case errServe := <-errCh:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", errServe)
		}
		return nil
	}
}
