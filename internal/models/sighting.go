package models

import "time"

// Sighting is one logged pest observation.
type Sighting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	PropertyID uint64  `gorm:"not null;index"` // Owning property.
	ReporterID *uint64 `gorm:"index"`          // User who logged the sighting.

	SightedAt time.Time `gorm:"not null;index"`     // When the pest was seen.
	Location  string    `gorm:"type:text;not null"` // Where in the property.
	RoomType  string    `gorm:"type:text"`          // Kitchen, bathroom, bedroom, ...

	PestCount int    `gorm:"not null;default:1"` // Number of pests seen, >= 1.
	PestSize  string `gorm:"type:text"`          // small / medium / large.
	PestType  string `gorm:"type:text"`          // Species or description.

	Notes       string   `gorm:"type:text"` // Free-text notes.
	Weather     string   `gorm:"type:text"` // Weather at sighting time.
	Temperature *float64 // Temperature at sighting time, when recorded.
	TimeOfDay   string   `gorm:"type:text"` // morning / afternoon / evening / night.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
