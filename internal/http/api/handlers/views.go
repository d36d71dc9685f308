package handlers

import (
	"time"

	"github.com/pesttrack/pesttrack/internal/models"
)

// userView is the account shape returned over the API. The credential
// hash never leaves the server.
type userView struct {
	ID          uint64      `json:"id"`            // Account ID.
	Username    string      `json:"username"`      // Login name.
	Email       string      `json:"email"`         // Contact email.
	FullName    string      `json:"full_name"`     // Optional display name.
	Role        models.Role `json:"role"`          // Assigned role.
	Active      bool        `json:"active"`        // Whether logins are allowed.
	LastLoginAt *time.Time  `json:"last_login_at"` // Most recent successful login.
	CreatedAt   time.Time   `json:"created_at"`    // Account creation time.
}

func newUserView(user *models.User) userView {
	return userView{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FullName:    user.FullName,
		Role:        user.Role,
		Active:      user.Active,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}
