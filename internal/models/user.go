package models

import (
	"strings"
	"time"
)

// Role identifies a user's access level.
type Role string

// Enumerated roles. No other value is ever stored.
const (
	RoleAdmin           Role = "admin"
	RoleResident        Role = "resident"
	RolePropertyManager Role = "property_manager"
)

// Valid reports whether the role is one of the enumerated values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleResident, RolePropertyManager:
		return true
	default:
		return false
	}
}

// ParseRole normalizes a role string and reports whether it is valid.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	return role, role.Valid()
}

// User represents an account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique email address.
	FullName string `gorm:"type:text"`                      // Display name.
	Password string `gorm:"type:text;not null"`             // Password hash, never plaintext.

	Role   Role `gorm:"type:text;not null;default:resident"` // Access level.
	Active bool `gorm:"not null;default:true"`               // Whether the user can sign in.

	LastLoginAt *time.Time // Set on each successful login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
