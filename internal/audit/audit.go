// Package audit persists the append-only security event trail. Every
// authentication and account-lifecycle decision lands here; entries are
// never updated or deleted.
package audit

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pesttrack/pesttrack/internal/models"
)

// Security event types. The set is closed: consumers may rely on no
// other values appearing in the trail.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventLogout             = "logout"
	EventRegistration       = "registration"
	EventPasswordChange     = "password_change"
	EventUserCreated        = "user_created"
	EventUserDeleted        = "user_deleted"
	EventUserActivated      = "user_activated"
	EventUserDeactivated    = "user_deactivated"
	EventAccountLocked      = "account_locked"
	EventUnauthorizedAccess = "unauthorized_access"
)

// Entry describes one security event to record.
type Entry struct {
	EventType  string  // One of the Event* constants.
	Username   string  // Identity named in the attempt; may be unregistered.
	UserID     *uint64 // Resolved account ID when known.
	SourceAddr string  // Network source of the request.
	Detail     string  // Free-form context.
	Success    bool    // Whether the attempted action succeeded.
}

// Recorder writes audit entries to the database and mirrors them to the
// process log.
type Recorder struct {
	conn  *gorm.DB
	nowFn func() time.Time
}

// NewRecorder builds a Recorder. A nil nowFn uses time.Now.
func NewRecorder(conn *gorm.DB, nowFn func() time.Time) *Recorder {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Recorder{conn: conn, nowFn: nowFn}
}

// Record persists one audit entry. A storage failure is returned to the
// caller: a security decision whose trail cannot be written must not
// pass silently.
func (r *Recorder) Record(entry Entry) error {
	if r == nil || r.conn == nil {
		return fmt.Errorf("audit: recorder not initialized")
	}

	event := models.AuditEvent{
		EventType:  entry.EventType,
		Username:   entry.Username,
		UserID:     entry.UserID,
		SourceAddr: entry.SourceAddr,
		Detail:     entry.Detail,
		Success:    entry.Success,
		CreatedAt:  r.nowFn().UTC(),
	}
	if errCreate := r.conn.Create(&event).Error; errCreate != nil {
		return fmt.Errorf("audit: record %s: %w", entry.EventType, errCreate)
	}

	fields := log.Fields{
		"event":   entry.EventType,
		"user":    entry.Username,
		"source":  entry.SourceAddr,
		"success": entry.Success,
	}
	if entry.Detail != "" {
		fields["detail"] = entry.Detail
	}
	if !entry.Success || entry.EventType == EventLoginFailure || entry.EventType == EventUnauthorizedAccess || entry.EventType == EventAccountLocked {
		log.WithFields(fields).Warn("security event")
	} else {
		log.WithFields(fields).Info("security event")
	}
	return nil
}

// Recent returns the newest events, optionally filtered by event type
// or username, ordered newest first.
func (r *Recorder) Recent(eventType, username string, limit int) ([]models.AuditEvent, error) {
	if r == nil || r.conn == nil {
		return nil, fmt.Errorf("audit: recorder not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := r.conn.Model(&models.AuditEvent{})
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if username != "" {
		query = query.Where("username = ?", username)
	}

	var events []models.AuditEvent
	if errFind := query.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error; errFind != nil {
		return nil, fmt.Errorf("audit: list events: %w", errFind)
	}
	return events, nil
}
