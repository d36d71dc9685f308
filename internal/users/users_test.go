package users

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pesttrack/pesttrack/internal/audit"
	"github.com/pesttrack/pesttrack/internal/models"
	"github.com/pesttrack/pesttrack/internal/validate"
)

func newService(t *testing.T) (*Service, *gorm.DB, *models.User) {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.UserProperty{},
		&models.Sighting{},
		&models.AuditEvent{},
	)
	if errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	admin := &models.User{
		Username: "siteadmin1",
		Email:    "siteadmin1@example.com",
		Password: "unused",
		Role:     models.RoleAdmin,
		Active:   true,
	}
	if errCreate := conn.Create(admin).Error; errCreate != nil {
		t.Fatalf("seed admin: %v", errCreate)
	}

	policy := validate.Policy{
		MinUsernameLength: 3,
		MaxUsernameLength: 30,
		MinPasswordLength: 8,
		MaxPasswordLength: 128,
	}
	return NewService(conn, audit.NewRecorder(conn, nil), policy), conn, admin
}

func TestCreate(t *testing.T) {
	service, conn, admin := newService(t)

	user, errCreate := service.Create(admin, CreateParams{
		Username: "manager1",
		Email:    "manager1@example.com",
		Password: "S3cure!word",
		FullName: "Max Mills",
		Role:     models.RolePropertyManager,
		Active:   true,
	}, "10.0.0.1")
	if errCreate != nil {
		t.Fatalf("Create: %v", errCreate)
	}
	if user.Role != models.RolePropertyManager {
		t.Fatalf("role = %q", user.Role)
	}
	if user.Password == "S3cure!word" {
		t.Fatalf("password stored in clear")
	}

	var events []models.AuditEvent
	conn.Where("event_type = ?", audit.EventUserCreated).Find(&events)
	if len(events) != 1 {
		t.Fatalf("user_created events = %d, want 1", len(events))
	}
	// The detail names both the acting admin and the target.
	if want := "admin siteadmin1 created user manager1 with role property_manager"; events[0].Detail != want {
		t.Fatalf("detail = %q, want %q", events[0].Detail, want)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	service, _, admin := newService(t)

	var fieldErr *validate.FieldError
	_, errCreate := service.Create(admin, CreateParams{
		Username: "ok-name",
		Email:    "not-an-email",
		Password: "S3cure!word",
		Role:     models.RoleResident,
	}, "10.0.0.1")
	if !errors.As(errCreate, &fieldErr) || fieldErr.Field != "email" {
		t.Fatalf("got %v, want email field error", errCreate)
	}

	_, errRole := service.Create(admin, CreateParams{
		Username: "ok-name",
		Email:    "ok@example.com",
		Password: "S3cure!word",
		Role:     models.Role("owner"),
	}, "10.0.0.1")
	if !errors.As(errRole, &fieldErr) || fieldErr.Field != "role" {
		t.Fatalf("got %v, want role field error", errRole)
	}
}

func TestCreateDuplicate(t *testing.T) {
	service, _, admin := newService(t)

	params := CreateParams{
		Username: "manager1",
		Email:    "manager1@example.com",
		Password: "S3cure!word",
		Role:     models.RoleResident,
		Active:   true,
	}
	if _, errFirst := service.Create(admin, params, "10.0.0.1"); errFirst != nil {
		t.Fatalf("Create: %v", errFirst)
	}
	if _, errSecond := service.Create(admin, params, "10.0.0.1"); !errors.Is(errSecond, ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", errSecond)
	}
}

func TestSetActive(t *testing.T) {
	service, conn, admin := newService(t)

	target, errCreate := service.Create(admin, CreateParams{
		Username: "resident1",
		Email:    "resident1@example.com",
		Password: "S3cure!word",
		Role:     models.RoleResident,
		Active:   true,
	}, "10.0.0.1")
	if errCreate != nil {
		t.Fatalf("Create: %v", errCreate)
	}

	updated, errDeactivate := service.SetActive(admin, target.ID, false, "10.0.0.1")
	if errDeactivate != nil {
		t.Fatalf("SetActive: %v", errDeactivate)
	}
	if updated.Active {
		t.Fatalf("target still active")
	}

	// Repeating the same state is a no-op without a second trail entry.
	if _, errRepeat := service.SetActive(admin, target.ID, false, "10.0.0.1"); errRepeat != nil {
		t.Fatalf("SetActive repeat: %v", errRepeat)
	}
	var events []models.AuditEvent
	conn.Where("event_type = ?", audit.EventUserDeactivated).Find(&events)
	if len(events) != 1 {
		t.Fatalf("user_deactivated events = %d, want 1", len(events))
	}
	if want := "admin siteadmin1 deactivated user resident1"; events[0].Detail != want {
		t.Fatalf("detail = %q, want %q", events[0].Detail, want)
	}

	if _, errActivate := service.SetActive(admin, target.ID, true, "10.0.0.1"); errActivate != nil {
		t.Fatalf("SetActive: %v", errActivate)
	}
	conn.Where("event_type = ?", audit.EventUserActivated).Find(&events)
	if len(events) != 1 {
		t.Fatalf("user_activated events = %d, want 1", len(events))
	}
	if want := "admin siteadmin1 activated user resident1"; events[0].Detail != want {
		t.Fatalf("detail = %q, want %q", events[0].Detail, want)
	}
}

func TestSetActiveRefusesSelfDeactivation(t *testing.T) {
	service, _, admin := newService(t)
	if _, errSelf := service.SetActive(admin, admin.ID, false, "10.0.0.1"); !errors.Is(errSelf, ErrSelfChange) {
		t.Fatalf("got %v, want ErrSelfChange", errSelf)
	}
}

func TestDelete(t *testing.T) {
	service, conn, admin := newService(t)

	target, errCreate := service.Create(admin, CreateParams{
		Username: "resident1",
		Email:    "resident1@example.com",
		Password: "S3cure!word",
		Role:     models.RoleResident,
		Active:   true,
	}, "10.0.0.1")
	if errCreate != nil {
		t.Fatalf("Create: %v", errCreate)
	}

	sighting := models.Sighting{PropertyID: 1, ReporterID: &target.ID, Location: "kitchen"}
	if errSeed := conn.Create(&sighting).Error; errSeed != nil {
		t.Fatalf("seed sighting: %v", errSeed)
	}

	if errDelete := service.Delete(admin, target.ID, "10.0.0.1"); errDelete != nil {
		t.Fatalf("Delete: %v", errDelete)
	}

	if errFind := conn.First(&models.User{}, target.ID).Error; !errors.Is(errFind, gorm.ErrRecordNotFound) {
		t.Fatalf("target still present: %v", errFind)
	}

	// The report survives without its reporter.
	var kept models.Sighting
	if errFind := conn.First(&kept, sighting.ID).Error; errFind != nil {
		t.Fatalf("sighting lost: %v", errFind)
	}
	if kept.ReporterID != nil {
		t.Fatalf("reporter reference not cleared")
	}

	var events []models.AuditEvent
	conn.Where("event_type = ?", audit.EventUserDeleted).Find(&events)
	if len(events) != 1 {
		t.Fatalf("user_deleted events = %d, want 1", len(events))
	}
	if want := "admin siteadmin1 deleted user resident1"; events[0].Detail != want {
		t.Fatalf("detail = %q, want %q", events[0].Detail, want)
	}
}

func TestDeleteRefusesSelf(t *testing.T) {
	service, _, admin := newService(t)
	if errSelf := service.Delete(admin, admin.ID, "10.0.0.1"); !errors.Is(errSelf, ErrSelfChange) {
		t.Fatalf("got %v, want ErrSelfChange", errSelf)
	}
}

func TestDeleteMissingUser(t *testing.T) {
	service, _, admin := newService(t)
	if errMissing := service.Delete(admin, 9999, "10.0.0.1"); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", errMissing)
	}
}
