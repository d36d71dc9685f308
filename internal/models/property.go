package models

import "time"

// Property represents a managed building or unit that sightings belong to.
type Property struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name    string `gorm:"type:text;not null"` // Display name.
	Address string `gorm:"type:text"`          // Street address.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// UserProperty assigns a user to a property. Residents and property
// managers only see sightings for properties they are assigned to.
type UserProperty struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     uint64 `gorm:"not null;uniqueIndex:idx_user_properties_user_property"` // Assigned user.
	PropertyID uint64 `gorm:"not null;uniqueIndex:idx_user_properties_user_property"` // Assigned property.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Assignment timestamp.
}
