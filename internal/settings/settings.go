package settings

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pesttrack/pesttrack/internal/models"
	"gorm.io/gorm"
)

// SecurityConfig captures the security limits consumed by the validator
// and the rate limiter.
type SecurityConfig struct {
	MaxLoginAttempts  int
	AttemptWindow     time.Duration
	LockoutDuration   time.Duration
	MinPasswordLength int
	MaxPasswordLength int
	MinUsernameLength int
	MaxUsernameLength int
}

// DefaultSecurityConfig returns the built-in security limits.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxLoginAttempts:  DefaultMaxLoginAttempts,
		AttemptWindow:     DefaultAttemptWindowSeconds * time.Second,
		LockoutDuration:   DefaultLockoutDurationSeconds * time.Second,
		MinPasswordLength: DefaultMinPasswordLength,
		MaxPasswordLength: DefaultMaxPasswordLength,
		MinUsernameLength: DefaultMinUsernameLength,
		MaxUsernameLength: DefaultMaxUsernameLength,
	}
}

// LoadSecurityConfig loads security limits, applying any overrides
// stored in the settings table on top of the defaults.
func LoadSecurityConfig(conn *gorm.DB) SecurityConfig {
	cfg := DefaultSecurityConfig()
	if conn == nil {
		return cfg
	}

	if v, ok := intValue(conn, MaxLoginAttemptsKey); ok && v > 0 {
		cfg.MaxLoginAttempts = v
	}
	if v, ok := intValue(conn, AttemptWindowSecondsKey); ok && v > 0 {
		cfg.AttemptWindow = time.Duration(v) * time.Second
	}
	if v, ok := intValue(conn, LockoutDurationSecondsKey); ok && v > 0 {
		cfg.LockoutDuration = time.Duration(v) * time.Second
	}
	if v, ok := intValue(conn, MinPasswordLengthKey); ok && v > 0 {
		cfg.MinPasswordLength = v
	}
	if v, ok := intValue(conn, MaxPasswordLengthKey); ok && v > 0 {
		cfg.MaxPasswordLength = v
	}
	if v, ok := intValue(conn, MinUsernameLengthKey); ok && v > 0 {
		cfg.MinUsernameLength = v
	}
	if v, ok := intValue(conn, MaxUsernameLengthKey); ok && v > 0 {
		cfg.MaxUsernameLength = v
	}
	return cfg
}

// SiteName returns the configured site name or the default.
func SiteName(conn *gorm.DB) string {
	if raw, ok := rawValue(conn, SiteNameKey); ok {
		if name, okParse := parseString(raw); okParse && name != "" {
			return name
		}
	}
	return DefaultSiteName
}

// intValue reads one integer setting from the table.
func intValue(conn *gorm.DB, key string) (int, bool) {
	raw, ok := rawValue(conn, key)
	if !ok {
		return 0, false
	}
	return parseNonNegativeInt(raw)
}

// rawValue reads one raw JSON setting value from the table.
func rawValue(conn *gorm.DB, key string) (json.RawMessage, bool) {
	if conn == nil {
		return nil, false
	}
	var row models.Setting
	if errFind := conn.Where("key = ?", key).First(&row).Error; errFind != nil {
		return nil, false
	}
	if len(row.Value) == 0 {
		return nil, false
	}
	return json.RawMessage(row.Value), true
}

func parseString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	var parsedString string
	if errUnmarshal := json.Unmarshal(raw, &parsedString); errUnmarshal == nil {
		return strings.TrimSpace(parsedString), true
	}
	return "", false
}

func parseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return 0, false
		}
		if parsedFloat < 0 || parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}
