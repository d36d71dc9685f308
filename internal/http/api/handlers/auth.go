package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pesttrack/pesttrack/internal/auth"
)

// AuthHandler handles login, registration, and session endpoints.
type AuthHandler struct {
	authority *auth.Authority
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(authority *auth.Authority) *AuthHandler {
	return &AuthHandler{authority: authority}
}

// loginRequest defines the request body for logins.
type loginRequest struct {
	Username string `json:"username"` // Login name.
	Password string `json:"password"` // Cleartext password.
}

// Login verifies credentials and issues a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	result, errLogin := h.authority.Login(body.Username, body.Password, c.ClientIP())
	if errLogin != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !result.OK {
		switch result.Reason {
		case auth.ReasonLocked:
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       result.Message,
				"retry_after": int(result.RetryAfter.Seconds()),
			})
		case auth.ReasonInactive:
			c.JSON(http.StatusForbidden, gin.H{"error": result.Message})
		default:
			c.JSON(http.StatusUnauthorized, gin.H{"error": result.Message})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": result.Token,
		"user":  newUserView(result.User),
	})
}

// registerRequest defines the request body for self-registration.
type registerRequest struct {
	Username string `json:"username"`  // Desired login name.
	Email    string `json:"email"`     // Contact email.
	Password string `json:"password"`  // Cleartext password.
	FullName string `json:"full_name"` // Optional display name.
}

// Register creates a resident account.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	result, errRegister := h.authority.Register(body.Username, body.Email, body.Password, body.FullName, c.ClientIP())
	if errRegister != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !result.OK {
		status := http.StatusBadRequest
		if result.Reason == auth.ReasonDuplicate {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": result.Message, "field": result.Field})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": newUserView(result.User)})
}

// Logout records the end of the current session.
func (h *AuthHandler) Logout(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if errLogout := h.authority.Logout(user, c.ClientIP()); errLogout != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"` // Password in use today.
	NewPassword     string `json:"new_password"`     // Replacement password.
}

// ChangePassword rotates the current user's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	result, errChange := h.authority.ChangePassword(user.ID, body.CurrentPassword, body.NewPassword, c.ClientIP())
	if errChange != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !result.OK {
		status := http.StatusBadRequest
		if result.Reason == auth.ReasonInvalidCredentials {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": result.Message, "field": result.Field})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserView(user)})
}
