package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pesttrack/pesttrack/internal/config"
	"github.com/pesttrack/pesttrack/internal/models"
	"github.com/pesttrack/pesttrack/internal/security"
	internalsettings "github.com/pesttrack/pesttrack/internal/settings"
	"github.com/pesttrack/pesttrack/internal/validate"
)

// CreateAdminParams hold inputs for admin account creation.
type CreateAdminParams struct {
	Username string
	Email    string
	Password string
	FullName string
}

// CreateAdmin provisions an administrator account from the command
// line. Validation mirrors registration except that the reserved-name
// rule is relaxed: the operator may well want the account to be named
// admin.
func CreateAdmin(ctx context.Context, cfg config.AppConfig, params CreateAdminParams) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	if errEnsure := EnsureConfig(configPath); errEnsure != nil {
		return errEnsure
	}
	conn, errOpen := openDatabase(configPath)
	if errOpen != nil {
		return errOpen
	}

	username := strings.TrimSpace(params.Username)
	email := strings.TrimSpace(params.Email)
	if username == "" || email == "" || params.Password == "" {
		return fmt.Errorf("app: username, email, and password are required")
	}

	securityConfig := internalsettings.LoadSecurityConfig(conn)
	policy := validate.PolicyFromSecurity(securityConfig)
	if errField := validate.Email(email); errField != nil {
		return fmt.Errorf("app: %s", errField.Reason)
	}
	if errField := policy.Password(params.Password); errField != nil {
		return fmt.Errorf("app: %s", errField.Reason)
	}

	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.User{}).
		Where("LOWER(username) = ? OR LOWER(email) = ?", strings.ToLower(username), strings.ToLower(email)).
		Count(&count).Error; errCount != nil {
		return fmt.Errorf("app: check existing account: %w", errCount)
	}
	if count > 0 {
		return fmt.Errorf("app: username or email is already taken")
	}

	hash, errHash := security.HashPassword(params.Password)
	if errHash != nil {
		return errHash
	}
	admin := models.User{
		Username: username,
		Email:    strings.ToLower(email),
		FullName: strings.TrimSpace(params.FullName),
		Password: hash,
		Role:     models.RoleAdmin,
		Active:   true,
	}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("app: create admin: %w", errCreate)
	}

	log.WithFields(log.Fields{"username": admin.Username, "id": admin.ID}).Info("admin account created")
	return nil
}
