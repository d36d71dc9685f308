package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pesttrack/pesttrack/internal/audit"
	"github.com/pesttrack/pesttrack/internal/auth"
	"github.com/pesttrack/pesttrack/internal/models"
	"github.com/pesttrack/pesttrack/internal/ratelimit"
	"github.com/pesttrack/pesttrack/internal/security"
	"github.com/pesttrack/pesttrack/internal/sightings"
	"github.com/pesttrack/pesttrack/internal/users"
	"github.com/pesttrack/pesttrack/internal/validate"
)

type apiFixture struct {
	engine *gin.Engine
	conn   *gorm.DB
	tokens *security.TokenIssuer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Property{},
		&models.UserProperty{},
		&models.Sighting{},
		&models.AuditEvent{},
		&models.Setting{},
	)
	if errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	tokens, errTokens := security.NewTokenIssuer("api-test-secret", time.Hour)
	if errTokens != nil {
		t.Fatalf("token issuer: %v", errTokens)
	}

	policy := validate.Policy{
		MinUsernameLength: 3,
		MaxUsernameLength: 30,
		MinPasswordLength: 8,
		MaxPasswordLength: 128,
	}
	recorder := audit.NewRecorder(conn, nil)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.DefaultSettings(), nil)

	engine := gin.New()
	RegisterRoutes(engine, Deps{
		DB:        conn,
		Tokens:    tokens,
		Authority: auth.NewAuthority(conn, limiter, recorder, tokens, policy, nil),
		Recorder:  recorder,
		Users:     users.NewService(conn, recorder, policy),
		Sightings: sightings.NewService(conn, nil),
	})
	return &apiFixture{engine: engine, conn: conn, tokens: tokens}
}

// seedUser stores an account and returns it with a valid session token.
func (f *apiFixture) seedUser(t *testing.T, username string, role models.Role, active bool) (*models.User, string) {
	t.Helper()
	hash, errHash := security.HashPassword("S3cure!word")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hash,
		Role:     role,
		Active:   active,
	}
	if errCreate := f.conn.Create(user).Error; errCreate != nil {
		t.Fatalf("seed user %s: %v", username, errCreate)
	}
	token, errIssue := f.tokens.Issue(user)
	if errIssue != nil {
		t.Fatalf("issue token: %v", errIssue)
	}
	return user, token
}

func (f *apiFixture) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), errDecode)
	}
	return body.Error
}

func TestAdminRouteForbiddenForResident(t *testing.T) {
	fixture := newAPIFixture(t)
	resident, token := fixture.seedUser(t, "resident1", models.RoleResident, true)

	rec := fixture.do(http.MethodGet, "/v0/users", token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if msg := errorBody(t, rec); msg != "insufficient permissions" {
		t.Fatalf("error = %q", msg)
	}

	var events []models.AuditEvent
	fixture.conn.Where("event_type = ?", audit.EventUnauthorizedAccess).Find(&events)
	if len(events) != 1 {
		t.Fatalf("unauthorized_access events = %d, want 1", len(events))
	}
	if events[0].Username != resident.Username {
		t.Fatalf("event username = %q, want %q", events[0].Username, resident.Username)
	}
	if events[0].UserID == nil || *events[0].UserID != resident.ID {
		t.Fatalf("event user id = %v, want %d", events[0].UserID, resident.ID)
	}
	if events[0].Detail != "GET /v0/users" {
		t.Fatalf("event detail = %q", events[0].Detail)
	}
}

func TestAdminRouteAllowsAdmin(t *testing.T) {
	fixture := newAPIFixture(t)
	_, token := fixture.seedUser(t, "siteadmin1", models.RoleAdmin, true)

	rec := fixture.do(http.MethodGet, "/v0/users", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	// Letting an admin through leaves no trail entry.
	var count int64
	fixture.conn.Model(&models.AuditEvent{}).Where("event_type = ?", audit.EventUnauthorizedAccess).Count(&count)
	if count != 0 {
		t.Fatalf("unauthorized_access events = %d, want 0", count)
	}
}

func TestAuthMiddlewareRejectsInactiveAccount(t *testing.T) {
	fixture := newAPIFixture(t)
	_, token := fixture.seedUser(t, "resident1", models.RoleResident, false)

	// The token itself is valid; the account state decides.
	rec := fixture.do(http.MethodGet, "/v0/auth/me", token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if msg := errorBody(t, rec); msg != "account is deactivated" {
		t.Fatalf("error = %q", msg)
	}
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	fixture := newAPIFixture(t)

	rec := fixture.do(http.MethodGet, "/v0/auth/me", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = fixture.do(http.MethodGet, "/v0/auth/me", "not-a-jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if msg := errorBody(t, rec); msg != "invalid token" {
		t.Fatalf("error = %q", msg)
	}

	req := httptest.NewRequest(http.MethodGet, "/v0/auth/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	recFormat := httptest.NewRecorder()
	fixture.engine.ServeHTTP(recFormat, req)
	if recFormat.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer scheme: status = %d, want %d", recFormat.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareRejectsDeletedAccountToken(t *testing.T) {
	fixture := newAPIFixture(t)
	user, token := fixture.seedUser(t, "resident1", models.RoleResident, true)

	if errDelete := fixture.conn.Delete(user).Error; errDelete != nil {
		t.Fatalf("delete user: %v", errDelete)
	}

	rec := fixture.do(http.MethodGet, "/v0/auth/me", token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if msg := errorBody(t, rec); msg != "user not found" {
		t.Fatalf("error = %q", msg)
	}
}
