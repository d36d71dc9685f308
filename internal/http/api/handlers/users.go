package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pesttrack/pesttrack/internal/models"
	"github.com/pesttrack/pesttrack/internal/users"
	"github.com/pesttrack/pesttrack/internal/validate"
)

// UserHandler manages admin CRUD endpoints for accounts.
type UserHandler struct {
	db      *gorm.DB
	service *users.Service
}

// NewUserHandler constructs a user handler.
func NewUserHandler(db *gorm.DB, service *users.Service) *UserHandler {
	return &UserHandler{db: db, service: service}
}

// createUserRequest captures the payload for creating an account.
type createUserRequest struct {
	Username string `json:"username"`  // Login name.
	Email    string `json:"email"`     // Contact email.
	Password string `json:"password"`  // Initial password.
	FullName string `json:"full_name"` // Optional display name.
	Role     string `json:"role"`      // resident, property_manager, or admin.
	Active   *bool  `json:"active"`    // Optional active flag, default true.
}

// Create validates input and inserts a new account.
func (h *UserHandler) Create(c *gin.Context) {
	actor := CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	role, okRole := models.ParseRole(body.Role)
	if !okRole {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role", "field": "role"})
		return
	}
	active := true
	if body.Active != nil {
		active = *body.Active
	}

	user, errCreate := h.service.Create(actor, users.CreateParams{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		FullName: body.FullName,
		Role:     role,
		Active:   active,
	}, c.ClientIP())
	if errCreate != nil {
		var fieldErr *validate.FieldError
		switch {
		case errors.As(errCreate, &fieldErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Reason, "field": fieldErr.Field})
		case errors.Is(errCreate, users.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": "username or email is already taken"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": newUserView(user)})
}

// List returns accounts, newest first.
func (h *UserHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	var accounts []models.User
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&accounts).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query users failed"})
		return
	}

	views := make([]userView, 0, len(accounts))
	for i := range accounts {
		views = append(views, newUserView(&accounts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}

// Get returns one account by ID.
func (h *UserHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserView(&user)})
}

// Enable reactivates an account.
func (h *UserHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

// Disable deactivates an account.
func (h *UserHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

func (h *UserHandler) setActive(c *gin.Context, active bool) {
	actor := CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	user, errSet := h.service.SetActive(actor, id, active, c.ClientIP())
	if errSet != nil {
		switch {
		case errors.Is(errSet, users.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(errSet, users.ErrSelfChange):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot deactivate your own account"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserView(user)})
}

// Delete removes an account.
func (h *UserHandler) Delete(c *gin.Context) {
	actor := CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if errDelete := h.service.Delete(actor, id, c.ClientIP()); errDelete != nil {
		switch {
		case errors.Is(errDelete, users.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(errDelete, users.ErrSelfChange):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
