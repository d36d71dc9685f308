// Package users implements administrative account management: creating
// accounts with an explicit role, toggling activation, and deletion.
// Every lifecycle change names both the acting admin and the target in
// the audit trail.
package users

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/pesttrack/pesttrack/internal/audit"
	"github.com/pesttrack/pesttrack/internal/db"
	"github.com/pesttrack/pesttrack/internal/models"
	"github.com/pesttrack/pesttrack/internal/security"
	"github.com/pesttrack/pesttrack/internal/validate"
)

var (
	ErrNotFound   = errors.New("users: user not found")
	ErrDuplicate  = errors.New("users: username or email already taken")
	ErrSelfChange = errors.New("users: cannot apply this change to your own account")
)

// Service performs administrative user operations.
type Service struct {
	conn     *gorm.DB
	recorder *audit.Recorder
	policy   validate.Policy
}

// NewService builds a Service.
func NewService(conn *gorm.DB, recorder *audit.Recorder, policy validate.Policy) *Service {
	return &Service{conn: conn, recorder: recorder, policy: policy}
}

// CreateParams describe a new account created by an admin.
type CreateParams struct {
	Username string
	Email    string
	Password string
	FullName string
	Role     models.Role
	Active   bool
}

// Create validates and stores a new account on behalf of the acting
// admin. A *validate.FieldError return means the input was rejected.
func (s *Service) Create(actor *models.User, params CreateParams, source string) (*models.User, error) {
	params.Username = strings.TrimSpace(params.Username)
	params.Email = strings.TrimSpace(params.Email)
	params.FullName = strings.TrimSpace(params.FullName)

	for _, errField := range []*validate.FieldError{
		s.policy.Username(params.Username),
		validate.Email(params.Email),
		s.policy.Password(params.Password),
		validate.FullName(params.FullName),
	} {
		if errField != nil {
			return nil, errField
		}
	}
	if !params.Role.Valid() {
		return nil, &validate.FieldError{Field: "role", Reason: "unknown role"}
	}

	hash, errHash := security.HashPassword(params.Password)
	if errHash != nil {
		return nil, errHash
	}

	user := models.User{
		Username: params.Username,
		Email:    strings.ToLower(params.Email),
		FullName: params.FullName,
		Password: hash,
		Role:     params.Role,
		Active:   params.Active,
	}
	if errCreate := s.conn.Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("users: create: %w", errCreate)
	}

	if errRecord := s.recorder.Record(audit.Entry{
		EventType:  audit.EventUserCreated,
		Username:   actor.Username,
		UserID:     &actor.ID,
		SourceAddr: source,
		Detail:     fmt.Sprintf("admin %s created user %s with role %s", actor.Username, user.Username, user.Role),
		Success:    true,
	}); errRecord != nil {
		return nil, errRecord
	}
	return &user, nil
}

// SetActive activates or deactivates the target account. Admins cannot
// deactivate themselves.
func (s *Service) SetActive(actor *models.User, targetID uint64, active bool, source string) (*models.User, error) {
	if !active && actor.ID == targetID {
		return nil, ErrSelfChange
	}

	target, errFind := s.byID(targetID)
	if errFind != nil {
		return nil, errFind
	}
	if target.Active == active {
		return target, nil
	}

	if errUpdate := s.conn.Model(target).Update("active", active).Error; errUpdate != nil {
		return nil, fmt.Errorf("users: update active flag: %w", errUpdate)
	}
	target.Active = active

	eventType := audit.EventUserDeactivated
	verb := "deactivated"
	if active {
		eventType = audit.EventUserActivated
		verb = "activated"
	}
	if errRecord := s.recorder.Record(audit.Entry{
		EventType:  eventType,
		Username:   actor.Username,
		UserID:     &actor.ID,
		SourceAddr: source,
		Detail:     fmt.Sprintf("admin %s %s user %s", actor.Username, verb, target.Username),
		Success:    true,
	}); errRecord != nil {
		return nil, errRecord
	}
	return target, nil
}

// Delete removes the target account. Admins cannot delete themselves.
// The target's sightings survive with their reporter reference cleared.
func (s *Service) Delete(actor *models.User, targetID uint64, source string) error {
	if actor.ID == targetID {
		return ErrSelfChange
	}

	target, errFind := s.byID(targetID)
	if errFind != nil {
		return errFind
	}

	errTx := s.conn.Transaction(func(tx *gorm.DB) error {
		if errClear := tx.Model(&models.Sighting{}).
			Where("reporter_id = ?", target.ID).
			Update("reporter_id", nil).Error; errClear != nil {
			return fmt.Errorf("users: detach sightings: %w", errClear)
		}
		if errMembership := tx.Where("user_id = ?", target.ID).
			Delete(&models.UserProperty{}).Error; errMembership != nil {
			return fmt.Errorf("users: remove property links: %w", errMembership)
		}
		if errDelete := tx.Delete(target).Error; errDelete != nil {
			return fmt.Errorf("users: delete: %w", errDelete)
		}
		return nil
	})
	if errTx != nil {
		return errTx
	}

	return s.recorder.Record(audit.Entry{
		EventType:  audit.EventUserDeleted,
		Username:   actor.Username,
		UserID:     &actor.ID,
		SourceAddr: source,
		Detail:     fmt.Sprintf("admin %s deleted user %s", actor.Username, target.Username),
		Success:    true,
	})
}

func (s *Service) byID(id uint64) (*models.User, error) {
	var user models.User
	if errFind := s.conn.First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: look up user: %w", errFind)
	}
	return &user, nil
}
