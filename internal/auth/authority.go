// Package auth implements the authentication decision flow: login,
// registration, password change, and logout. Every decision is written
// to the audit trail, and login failures feed the rate limiter.
package auth

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pesttrack/pesttrack/internal/audit"
	"github.com/pesttrack/pesttrack/internal/models"
	"github.com/pesttrack/pesttrack/internal/ratelimit"
	"github.com/pesttrack/pesttrack/internal/security"
	"github.com/pesttrack/pesttrack/internal/validate"
)

// Reason classifies why an authentication request was denied.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonLocked             Reason = "locked"
	ReasonInactive           Reason = "inactive"
	ReasonDuplicate          Reason = "duplicate"
	ReasonValidation         Reason = "validation"
)

// User-presentable denial messages. The invalid-credentials message is
// deliberately identical for unknown accounts and wrong passwords.
const (
	MsgInvalidCredentials = "invalid username or password"
	MsgInactive           = "account is deactivated"
	MsgDuplicate          = "username or email is already taken"
)

// lockedMessage renders the lockout message with the retry hint.
func lockedMessage(retryAfter time.Duration) string {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("too many failed attempts, try again in %d seconds", seconds)
}

// Authority coordinates credential verification, rate limiting, and
// audit recording.
type Authority struct {
	conn     *gorm.DB
	limiter  ratelimit.Limiter
	recorder *audit.Recorder
	tokens   *security.TokenIssuer
	policy   validate.Policy
	nowFn    func() time.Time
}

// NewAuthority builds an Authority. A nil nowFn uses time.Now.
func NewAuthority(conn *gorm.DB, limiter ratelimit.Limiter, recorder *audit.Recorder, tokens *security.TokenIssuer, policy validate.Policy, nowFn func() time.Time) *Authority {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Authority{
		conn:     conn,
		limiter:  limiter,
		recorder: recorder,
		tokens:   tokens,
		policy:   policy,
		nowFn:    nowFn,
	}
}

// LoginResult reports the outcome of a login attempt. When OK is false,
// Reason and Message explain the denial; infrastructure failures come
// back as a separate error instead.
type LoginResult struct {
	OK         bool
	User       *models.User
	Token      string
	Reason     Reason
	Message    string
	RetryAfter time.Duration
}

// Login verifies credentials for the named identity coming from the
// given source address.
func (a *Authority) Login(username, password, source string) (LoginResult, error) {
	identity := strings.TrimSpace(username)

	if status := a.limiter.Check(identity, source); !status.Allowed {
		if errRecord := a.recorder.Record(audit.Entry{
			EventType:  audit.EventLoginFailure,
			Username:   identity,
			SourceAddr: source,
			Detail:     "attempt while locked out",
		}); errRecord != nil {
			return LoginResult{}, errRecord
		}
		return LoginResult{
			Reason:     ReasonLocked,
			Message:    lockedMessage(status.RetryAfter),
			RetryAfter: status.RetryAfter,
		}, nil
	}

	user, errFind := a.findByUsername(identity)
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return LoginResult{}, fmt.Errorf("auth: look up user: %w", errFind)
	}

	if user == nil {
		// Burn the same hashing work as a real verification so a
		// missing account is not observable through response timing.
		security.VerifyPassword(security.DummyHash(), password)
		return a.loginFailure(identity, nil, source, "unknown username")
	}

	if !security.VerifyPassword(user.Password, password) {
		return a.loginFailure(identity, &user.ID, source, "wrong password")
	}

	if !user.Active {
		if errRecord := a.recorder.Record(audit.Entry{
			EventType:  audit.EventLoginFailure,
			Username:   user.Username,
			UserID:     &user.ID,
			SourceAddr: source,
			Detail:     "inactive account",
		}); errRecord != nil {
			return LoginResult{}, errRecord
		}
		return LoginResult{Reason: ReasonInactive, Message: MsgInactive}, nil
	}

	a.limiter.RecordSuccess(identity, source)

	now := a.nowFn().UTC()
	if errUpdate := a.conn.Model(user).Update("last_login_at", now).Error; errUpdate != nil {
		return LoginResult{}, fmt.Errorf("auth: update last login: %w", errUpdate)
	}
	user.LastLoginAt = &now

	if errRecord := a.recorder.Record(audit.Entry{
		EventType:  audit.EventLoginSuccess,
		Username:   user.Username,
		UserID:     &user.ID,
		SourceAddr: source,
		Success:    true,
	}); errRecord != nil {
		return LoginResult{}, errRecord
	}

	token, errIssue := a.tokens.Issue(user)
	if errIssue != nil {
		return LoginResult{}, errIssue
	}
	return LoginResult{OK: true, User: user, Token: token}, nil
}

// loginFailure records a failed credential check: the limiter counts
// it, a fresh lockout gets its own account_locked event, and the
// caller-facing message never reveals which part of the credential
// pair was wrong.
func (a *Authority) loginFailure(identity string, userID *uint64, source, detail string) (LoginResult, error) {
	status := a.limiter.RecordFailure(identity, source)

	if status.NewlyLocked {
		if errRecord := a.recorder.Record(audit.Entry{
			EventType:  audit.EventAccountLocked,
			Username:   identity,
			UserID:     userID,
			SourceAddr: source,
			Detail:     lockedMessage(status.RetryAfter),
		}); errRecord != nil {
			return LoginResult{}, errRecord
		}
	}

	if errRecord := a.recorder.Record(audit.Entry{
		EventType:  audit.EventLoginFailure,
		Username:   identity,
		UserID:     userID,
		SourceAddr: source,
		Detail:     detail,
	}); errRecord != nil {
		return LoginResult{}, errRecord
	}

	if !status.Allowed {
		return LoginResult{
			Reason:     ReasonLocked,
			Message:    lockedMessage(status.RetryAfter),
			RetryAfter: status.RetryAfter,
		}, nil
	}
	return LoginResult{Reason: ReasonInvalidCredentials, Message: MsgInvalidCredentials}, nil
}

// RegisterResult reports the outcome of a self-registration attempt.
type RegisterResult struct {
	OK      bool
	User    *models.User
	Reason  Reason
	Message string
	Field   string
}

// Register creates a resident account after validating every field.
// Validation failures are reported without touching the audit trail;
// duplicate identities are audited as failed registrations.
func (a *Authority) Register(username, email, password, fullName, source string) (RegisterResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	fullName = strings.TrimSpace(fullName)

	for _, errField := range []*validate.FieldError{
		a.policy.Username(username),
		validate.Email(email),
		a.policy.Password(password),
		validate.FullName(fullName),
	} {
		if errField != nil {
			return RegisterResult{
				Reason:  ReasonValidation,
				Message: errField.Reason,
				Field:   errField.Field,
			}, nil
		}
	}

	if taken, errTaken := a.identityTaken(username, email); errTaken != nil {
		return RegisterResult{}, errTaken
	} else if taken {
		if errRecord := a.recorder.Record(audit.Entry{
			EventType:  audit.EventRegistration,
			Username:   username,
			SourceAddr: source,
			Detail:     "duplicate username or email",
		}); errRecord != nil {
			return RegisterResult{}, errRecord
		}
		return RegisterResult{Reason: ReasonDuplicate, Message: MsgDuplicate}, nil
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return RegisterResult{}, errHash
	}

	user := models.User{
		Username: username,
		Email:    strings.ToLower(email),
		FullName: fullName,
		Password: hash,
		Role:     models.RoleResident,
		Active:   true,
	}
	if errCreate := a.conn.Create(&user).Error; errCreate != nil {
		return RegisterResult{}, fmt.Errorf("auth: create user: %w", errCreate)
	}

	if errRecord := a.recorder.Record(audit.Entry{
		EventType:  audit.EventRegistration,
		Username:   user.Username,
		UserID:     &user.ID,
		SourceAddr: source,
		Success:    true,
	}); errRecord != nil {
		return RegisterResult{}, errRecord
	}
	return RegisterResult{OK: true, User: &user}, nil
}

// ChangeResult reports the outcome of a password change.
type ChangeResult struct {
	OK      bool
	Reason  Reason
	Message string
	Field   string
}

// ChangePassword rotates a user's password after re-verifying the
// current one.
func (a *Authority) ChangePassword(userID uint64, currentPassword, newPassword, source string) (ChangeResult, error) {
	var user models.User
	if errFind := a.conn.First(&user, userID).Error; errFind != nil {
		return ChangeResult{}, fmt.Errorf("auth: look up user: %w", errFind)
	}

	if !security.VerifyPassword(user.Password, currentPassword) {
		if errRecord := a.recorder.Record(audit.Entry{
			EventType:  audit.EventPasswordChange,
			Username:   user.Username,
			UserID:     &user.ID,
			SourceAddr: source,
			Detail:     "current password mismatch",
		}); errRecord != nil {
			return ChangeResult{}, errRecord
		}
		return ChangeResult{Reason: ReasonInvalidCredentials, Message: "current password is incorrect"}, nil
	}

	if errField := a.policy.Password(newPassword); errField != nil {
		return ChangeResult{
			Reason:  ReasonValidation,
			Message: errField.Reason,
			Field:   errField.Field,
		}, nil
	}

	hash, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		return ChangeResult{}, errHash
	}
	if errUpdate := a.conn.Model(&user).Update("password", hash).Error; errUpdate != nil {
		return ChangeResult{}, fmt.Errorf("auth: update password: %w", errUpdate)
	}

	if errRecord := a.recorder.Record(audit.Entry{
		EventType:  audit.EventPasswordChange,
		Username:   user.Username,
		UserID:     &user.ID,
		SourceAddr: source,
		Success:    true,
	}); errRecord != nil {
		return ChangeResult{}, errRecord
	}
	return ChangeResult{OK: true}, nil
}

// Logout records the end of a session. Token invalidation is the
// client's job; the trail entry is what matters server-side.
func (a *Authority) Logout(user *models.User, source string) error {
	if user == nil {
		return fmt.Errorf("auth: logout: nil user")
	}
	return a.recorder.Record(audit.Entry{
		EventType:  audit.EventLogout,
		Username:   user.Username,
		UserID:     &user.ID,
		SourceAddr: source,
		Success:    true,
	})
}

// findByUsername resolves a user by case-insensitive username match.
func (a *Authority) findByUsername(username string) (*models.User, error) {
	var user models.User
	if errFind := a.conn.Where("LOWER(username) = ?", strings.ToLower(username)).First(&user).Error; errFind != nil {
		return nil, errFind
	}
	return &user, nil
}

// identityTaken reports whether the username or email already belongs
// to an account.
func (a *Authority) identityTaken(username, email string) (bool, error) {
	var count int64
	errCount := a.conn.Model(&models.User{}).
		Where("LOWER(username) = ? OR LOWER(email) = ?", strings.ToLower(username), strings.ToLower(email)).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("auth: check identity: %w", errCount)
	}
	return count > 0, nil
}
