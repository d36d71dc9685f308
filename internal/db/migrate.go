package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pesttrack/pesttrack/internal/models"
	internalsettings "github.com/pesttrack/pesttrack/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate applies the schema and seeds default settings.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Property{},
		&models.UserProperty{},
		&models.Sighting{},
		&models.AuditEvent{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureSecuritySettings(conn); errSeed != nil {
		return errSeed
	}

	// ddl defines an index statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_audit_events_event_type_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_audit_events_event_type_created_at
				ON audit_events (event_type, created_at DESC)
			`,
		},
		{
			name: "idx_audit_events_username_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_audit_events_username_created_at
				ON audit_events (username, created_at DESC)
			`,
		},
		{
			name: "idx_sightings_property_id_sighted_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_sightings_property_id_sighted_at
				ON sightings (property_id, sighted_at DESC)
			`,
		},
		{
			name: "idx_sightings_location",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_sightings_location
				ON sightings (location)
			`,
		},
		{
			name: "idx_user_properties_property_id",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_user_properties_property_id
				ON user_properties (property_id)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

// ensureSecuritySettings seeds the overridable security limits.
func ensureSecuritySettings(conn *gorm.DB) error {
	seeds := map[string]int{
		internalsettings.MaxLoginAttemptsKey:       internalsettings.DefaultMaxLoginAttempts,
		internalsettings.AttemptWindowSecondsKey:   internalsettings.DefaultAttemptWindowSeconds,
		internalsettings.LockoutDurationSecondsKey: internalsettings.DefaultLockoutDurationSeconds,
		internalsettings.MinPasswordLengthKey:      internalsettings.DefaultMinPasswordLength,
		internalsettings.MaxPasswordLengthKey:      internalsettings.DefaultMaxPasswordLength,
		internalsettings.MinUsernameLengthKey:      internalsettings.DefaultMinUsernameLength,
		internalsettings.MaxUsernameLengthKey:      internalsettings.DefaultMaxUsernameLength,
	}
	for key, value := range seeds {
		if errEnsure := ensureIntSetting(conn, key, value); errEnsure != nil {
			return errEnsure
		}
	}
	return ensureStringSetting(conn, internalsettings.SiteNameKey, internalsettings.DefaultSiteName)
}

// ensureIntSetting ensures an integer setting exists and defaults when empty.
func ensureIntSetting(conn *gorm.DB, key string, value int) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	return ensureRawSetting(conn, key, payload)
}

// ensureStringSetting ensures a string setting exists and defaults when empty.
func ensureStringSetting(conn *gorm.DB, key string, value string) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	return ensureRawSetting(conn, key, payload)
}

func ensureRawSetting(conn *gorm.DB, key string, payload []byte) error {
	rawValue := json.RawMessage(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     datatypes.JSON(payload),
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
