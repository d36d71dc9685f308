package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting stores one JSON-valued configuration override in the database.
type Setting struct {
	Key   string         `gorm:"type:text;primaryKey"` // Setting key.
	Value datatypes.JSON `gorm:"not null"`             // JSON-encoded value.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
