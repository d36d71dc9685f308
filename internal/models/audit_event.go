package models

import "time"

// AuditEvent is one durable row in the security audit trail. Rows are
// append-only: nothing in this codebase updates or deletes them.
type AuditEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key, reflects insert order.

	EventType  string  `gorm:"type:text;not null;index"` // One of the audit.Event* constants.
	Username   string  `gorm:"type:text"`                // Associated username, empty for unauthenticated attempts.
	UserID     *uint64 `gorm:"index"`                    // Associated user ID when known.
	SourceAddr string  `gorm:"type:text"`                // Caller network address as supplied by the host layer.
	Detail     string  `gorm:"type:text"`                // Free-text context.
	Success    bool    `gorm:"not null;default:true"`    // Whether the audited action succeeded.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Event timestamp.
}
