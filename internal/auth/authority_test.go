package auth

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pesttrack/pesttrack/internal/audit"
	"github.com/pesttrack/pesttrack/internal/models"
	"github.com/pesttrack/pesttrack/internal/ratelimit"
	"github.com/pesttrack/pesttrack/internal/security"
	"github.com/pesttrack/pesttrack/internal/validate"
)

type fixture struct {
	conn      *gorm.DB
	authority *Authority
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.User{}, &models.AuditEvent{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	f := &fixture{conn: conn, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	nowFn := func() time.Time { return f.now }

	limiter := ratelimit.NewMemoryLimiter(ratelimit.Settings{
		MaxAttempts:     5,
		AttemptWindow:   5 * time.Minute,
		LockoutDuration: 15 * time.Minute,
	}, nowFn)
	recorder := audit.NewRecorder(conn, nowFn)
	tokens, errTokens := security.NewTokenIssuer("test-secret", time.Hour)
	if errTokens != nil {
		t.Fatalf("token issuer: %v", errTokens)
	}
	policy := validate.Policy{
		MinUsernameLength: 3,
		MaxUsernameLength: 30,
		MinPasswordLength: 8,
		MaxPasswordLength: 128,
	}
	f.authority = NewAuthority(conn, limiter, recorder, tokens, policy, nowFn)
	return f
}

func (f *fixture) seedUser(t *testing.T, username, password string, active bool) *models.User {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hash,
		Role:     models.RoleResident,
		Active:   active,
	}
	if errCreate := f.conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	return &user
}

func (f *fixture) auditCount(t *testing.T, eventType string) int64 {
	t.Helper()
	var count int64
	if errCount := f.conn.Model(&models.AuditEvent{}).Where("event_type = ?", eventType).Count(&count).Error; errCount != nil {
		t.Fatalf("count audit events: %v", errCount)
	}
	return count
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Corr3ct!horse", true)

	result, errLogin := f.authority.Login("alice", "Corr3ct!horse", "10.0.0.1")
	if errLogin != nil {
		t.Fatalf("Login: %v", errLogin)
	}
	if !result.OK {
		t.Fatalf("login denied: %+v", result)
	}
	if result.Token == "" {
		t.Fatalf("no token issued")
	}
	if result.User.LastLoginAt == nil || !result.User.LastLoginAt.Equal(f.now) {
		t.Fatalf("last login not stamped: %+v", result.User.LastLoginAt)
	}
	if got := f.auditCount(t, audit.EventLoginSuccess); got != 1 {
		t.Fatalf("login_success events = %d, want 1", got)
	}
}

func TestLoginUniformDenialMessage(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Corr3ct!horse", true)

	unknown, errUnknown := f.authority.Login("nobody", "AnyGuess5!", "10.0.0.1")
	if errUnknown != nil {
		t.Fatalf("Login unknown: %v", errUnknown)
	}
	wrong, errWrong := f.authority.Login("alice", "Wr0ng!guess", "10.0.0.1")
	if errWrong != nil {
		t.Fatalf("Login wrong password: %v", errWrong)
	}

	if unknown.OK || wrong.OK {
		t.Fatalf("bad credentials accepted")
	}
	if unknown.Message != MsgInvalidCredentials || wrong.Message != MsgInvalidCredentials {
		t.Fatalf("messages differ: %q vs %q", unknown.Message, wrong.Message)
	}
	if unknown.Reason != wrong.Reason {
		t.Fatalf("reasons differ: %q vs %q", unknown.Reason, wrong.Reason)
	}
	if got := f.auditCount(t, audit.EventLoginFailure); got != 2 {
		t.Fatalf("login_failure events = %d, want 2", got)
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Corr3ct!horse", true)

	var result LoginResult
	for i := 0; i < 5; i++ {
		var errLogin error
		result, errLogin = f.authority.Login("alice", "Wr0ng!guess", "10.0.0.1")
		if errLogin != nil {
			t.Fatalf("Login %d: %v", i+1, errLogin)
		}
	}

	if result.Reason != ReasonLocked {
		t.Fatalf("5th failure reason = %q, want locked", result.Reason)
	}
	if result.RetryAfter != 15*time.Minute {
		t.Fatalf("RetryAfter = %v, want 15m", result.RetryAfter)
	}
	if got := f.auditCount(t, audit.EventAccountLocked); got != 1 {
		t.Fatalf("account_locked events = %d, want 1", got)
	}

	// Correct credentials are still rejected while locked.
	locked, errLocked := f.authority.Login("alice", "Corr3ct!horse", "10.0.0.1")
	if errLocked != nil {
		t.Fatalf("Login while locked: %v", errLocked)
	}
	if locked.OK || locked.Reason != ReasonLocked {
		t.Fatalf("locked account accepted login: %+v", locked)
	}
	if locked.RetryAfter <= 0 {
		t.Fatalf("locked denial carries no retry hint")
	}

	// After the lockout lapses the correct password works again.
	f.now = f.now.Add(15*time.Minute + time.Second)
	after, errAfter := f.authority.Login("alice", "Corr3ct!horse", "10.0.0.1")
	if errAfter != nil {
		t.Fatalf("Login after expiry: %v", errAfter)
	}
	if !after.OK {
		t.Fatalf("login denied after lockout expiry: %+v", after)
	}
}

func TestLoginSuccessResetsFailureCount(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Corr3ct!horse", true)

	for i := 0; i < 4; i++ {
		if _, errLogin := f.authority.Login("alice", "Wr0ng!guess", "10.0.0.1"); errLogin != nil {
			t.Fatalf("Login: %v", errLogin)
		}
	}
	if result, errLogin := f.authority.Login("alice", "Corr3ct!horse", "10.0.0.1"); errLogin != nil || !result.OK {
		t.Fatalf("login at 4 failures denied: %+v err=%v", result, errLogin)
	}

	// The counter restarted: four more failures stay unlocked.
	for i := 0; i < 4; i++ {
		result, errLogin := f.authority.Login("alice", "Wr0ng!guess", "10.0.0.1")
		if errLogin != nil {
			t.Fatalf("Login: %v", errLogin)
		}
		if result.Reason == ReasonLocked {
			t.Fatalf("locked after %d post-success failures", i+1)
		}
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Corr3ct!horse", false)

	result, errLogin := f.authority.Login("alice", "Corr3ct!horse", "10.0.0.1")
	if errLogin != nil {
		t.Fatalf("Login: %v", errLogin)
	}
	if result.OK {
		t.Fatalf("deactivated account logged in")
	}
	if result.Reason != ReasonInactive || result.Message != MsgInactive {
		t.Fatalf("unexpected denial: %+v", result)
	}
	if got := f.auditCount(t, audit.EventLoginFailure); got != 1 {
		t.Fatalf("login_failure events = %d, want 1", got)
	}
}

func TestLoginUnknownUserCountsTowardSourceLock(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "victim", "Corr3ct!horse", true)

	// Five guesses against distinct unknown names lock the source.
	names := []string{"ghost1", "ghost2", "ghost3", "ghost4", "ghost5"}
	for _, name := range names {
		if _, errLogin := f.authority.Login(name, "AnyGuess5!", "10.0.0.9"); errLogin != nil {
			t.Fatalf("Login: %v", errLogin)
		}
	}

	result, errLogin := f.authority.Login("victim", "Corr3ct!horse", "10.0.0.9")
	if errLogin != nil {
		t.Fatalf("Login: %v", errLogin)
	}
	if result.OK || result.Reason != ReasonLocked {
		t.Fatalf("locked source accepted a login: %+v", result)
	}

	// The same account logs in fine from a clean address.
	clean, errClean := f.authority.Login("victim", "Corr3ct!horse", "192.168.1.2")
	if errClean != nil {
		t.Fatalf("Login clean source: %v", errClean)
	}
	if !clean.OK {
		t.Fatalf("clean source denied: %+v", clean)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	result, errRegister := f.authority.Register("newbie", "newbie@example.com", "Fr3sh!start", "Pat Doe", "10.0.0.1")
	if errRegister != nil {
		t.Fatalf("Register: %v", errRegister)
	}
	if !result.OK {
		t.Fatalf("registration denied: %+v", result)
	}
	if result.User.Role != models.RoleResident || !result.User.Active {
		t.Fatalf("unexpected new account: %+v", result.User)
	}
	if got := f.auditCount(t, audit.EventRegistration); got != 1 {
		t.Fatalf("registration events = %d, want 1", got)
	}

	login, errLogin := f.authority.Login("newbie", "Fr3sh!start", "10.0.0.1")
	if errLogin != nil || !login.OK {
		t.Fatalf("fresh account cannot log in: %+v err=%v", login, errLogin)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice", "Corr3ct!horse", true)

	result, errRegister := f.authority.Register("alice", "other@example.com", "Fr3sh!start", "", "10.0.0.1")
	if errRegister != nil {
		t.Fatalf("Register: %v", errRegister)
	}
	if result.OK || result.Reason != ReasonDuplicate {
		t.Fatalf("duplicate username accepted: %+v", result)
	}

	byEmail, errEmail := f.authority.Register("someoneelse", "alice@example.com", "Fr3sh!start", "", "10.0.0.1")
	if errEmail != nil {
		t.Fatalf("Register: %v", errEmail)
	}
	if byEmail.OK || byEmail.Reason != ReasonDuplicate {
		t.Fatalf("duplicate email accepted: %+v", byEmail)
	}

	// Both denials land in the trail as failed registrations.
	if got := f.auditCount(t, audit.EventRegistration); got != 2 {
		t.Fatalf("registration events = %d, want 2", got)
	}
}

func TestRegisterValidationFailureLeavesNoTrail(t *testing.T) {
	f := newFixture(t)

	result, errRegister := f.authority.Register("newbie", "newbie@example.com", "weak", "", "10.0.0.1")
	if errRegister != nil {
		t.Fatalf("Register: %v", errRegister)
	}
	if result.OK || result.Reason != ReasonValidation {
		t.Fatalf("weak password accepted: %+v", result)
	}
	if result.Field != "password" {
		t.Fatalf("Field = %q, want password", result.Field)
	}

	var count int64
	if errCount := f.conn.Model(&models.AuditEvent{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("validation failure wrote %d audit rows", count)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "Corr3ct!horse", true)

	wrong, errWrong := f.authority.ChangePassword(user.ID, "Wr0ng!guess", "N3wSecret!pw", "10.0.0.1")
	if errWrong != nil {
		t.Fatalf("ChangePassword: %v", errWrong)
	}
	if wrong.OK {
		t.Fatalf("wrong current password accepted")
	}

	weak, errWeak := f.authority.ChangePassword(user.ID, "Corr3ct!horse", "weak", "10.0.0.1")
	if errWeak != nil {
		t.Fatalf("ChangePassword: %v", errWeak)
	}
	if weak.OK || weak.Reason != ReasonValidation {
		t.Fatalf("weak new password accepted: %+v", weak)
	}

	ok, errOK := f.authority.ChangePassword(user.ID, "Corr3ct!horse", "N3wSecret!pw", "10.0.0.1")
	if errOK != nil {
		t.Fatalf("ChangePassword: %v", errOK)
	}
	if !ok.OK {
		t.Fatalf("valid change denied: %+v", ok)
	}

	login, errLogin := f.authority.Login("alice", "N3wSecret!pw", "10.0.0.1")
	if errLogin != nil || !login.OK {
		t.Fatalf("new password rejected: %+v err=%v", login, errLogin)
	}
	old, errOld := f.authority.Login("alice", "Corr3ct!horse", "10.0.0.2")
	if errOld != nil {
		t.Fatalf("Login: %v", errOld)
	}
	if old.OK {
		t.Fatalf("old password still works")
	}
	if got := f.auditCount(t, audit.EventPasswordChange); got != 2 {
		t.Fatalf("password_change events = %d, want 2", got)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "Corr3ct!horse", true)

	if errLogout := f.authority.Logout(user, "10.0.0.1"); errLogout != nil {
		t.Fatalf("Logout: %v", errLogout)
	}
	if got := f.auditCount(t, audit.EventLogout); got != 1 {
		t.Fatalf("logout events = %d, want 1", got)
	}
}
