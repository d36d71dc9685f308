package audit

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pesttrack/pesttrack/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.AuditEvent{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestRecordPersistsEntry(t *testing.T) {
	conn := testDB(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recorder := NewRecorder(conn, func() time.Time { return fixed })

	userID := uint64(7)
	errRecord := recorder.Record(Entry{
		EventType:  EventLoginSuccess,
		Username:   "alice",
		UserID:     &userID,
		SourceAddr: "10.0.0.1",
		Success:    true,
	})
	if errRecord != nil {
		t.Fatalf("Record: %v", errRecord)
	}

	var stored models.AuditEvent
	if errFind := conn.First(&stored).Error; errFind != nil {
		t.Fatalf("read back: %v", errFind)
	}
	if stored.EventType != EventLoginSuccess || stored.Username != "alice" || !stored.Success {
		t.Fatalf("unexpected row: %+v", stored)
	}
	if stored.UserID == nil || *stored.UserID != 7 {
		t.Fatalf("user id not stored: %+v", stored.UserID)
	}
	if !stored.CreatedAt.Equal(fixed) {
		t.Fatalf("CreatedAt = %v, want %v", stored.CreatedAt, fixed)
	}
}

func TestRecordUnknownUsername(t *testing.T) {
	conn := testDB(t)
	recorder := NewRecorder(conn, nil)

	errRecord := recorder.Record(Entry{
		EventType:  EventLoginFailure,
		Username:   "no-such-user",
		SourceAddr: "10.0.0.2",
		Detail:     "invalid credentials",
		Success:    false,
	})
	if errRecord != nil {
		t.Fatalf("Record: %v", errRecord)
	}

	var stored models.AuditEvent
	if errFind := conn.Where("username = ?", "no-such-user").First(&stored).Error; errFind != nil {
		t.Fatalf("read back: %v", errFind)
	}
	if stored.UserID != nil {
		t.Fatalf("unknown user stored with id %v", *stored.UserID)
	}
}

func TestRecentFilters(t *testing.T) {
	conn := testDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	recorder := NewRecorder(conn, func() time.Time { return current })

	seed := []Entry{
		{EventType: EventLoginFailure, Username: "alice", SourceAddr: "10.0.0.1"},
		{EventType: EventLoginSuccess, Username: "alice", SourceAddr: "10.0.0.1", Success: true},
		{EventType: EventLoginFailure, Username: "bob", SourceAddr: "10.0.0.2"},
	}
	for i, entry := range seed {
		current = base.Add(time.Duration(i) * time.Minute)
		if errRecord := recorder.Record(entry); errRecord != nil {
			t.Fatalf("seed %d: %v", i, errRecord)
		}
	}

	failures, errFailures := recorder.Recent(EventLoginFailure, "", 10)
	if errFailures != nil {
		t.Fatalf("Recent by type: %v", errFailures)
	}
	if len(failures) != 2 {
		t.Fatalf("got %d failures, want 2", len(failures))
	}
	if failures[0].Username != "bob" {
		t.Fatalf("newest-first ordering broken: %+v", failures[0])
	}

	alice, errAlice := recorder.Recent("", "alice", 10)
	if errAlice != nil {
		t.Fatalf("Recent by user: %v", errAlice)
	}
	if len(alice) != 2 {
		t.Fatalf("got %d alice events, want 2", len(alice))
	}
}

func TestRecordWithoutConnection(t *testing.T) {
	recorder := NewRecorder(nil, nil)
	if errRecord := recorder.Record(Entry{EventType: EventLogout}); errRecord == nil {
		t.Fatalf("nil connection did not error")
	}
}
