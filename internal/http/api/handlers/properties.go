package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pesttrack/pesttrack/internal/db"
	"github.com/pesttrack/pesttrack/internal/models"
	"github.com/pesttrack/pesttrack/internal/sightings"
)

// PropertyHandler manages properties and their memberships.
type PropertyHandler struct {
	db        *gorm.DB
	sightings *sightings.Service
}

// NewPropertyHandler constructs a property handler.
func NewPropertyHandler(conn *gorm.DB, sightingService *sightings.Service) *PropertyHandler {
	return &PropertyHandler{db: conn, sightings: sightingService}
}

// createPropertyRequest captures the payload for creating a property.
type createPropertyRequest struct {
	Name    string `json:"name"`    // Display name.
	Address string `json:"address"` // Street address.
}

// Create inserts a new property.
func (h *PropertyHandler) Create(c *gin.Context) {
	var body createPropertyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	property := models.Property{Name: name, Address: strings.TrimSpace(body.Address)}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&property).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create property failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"property": property})
}

// List returns the properties the current user can see.
func (h *PropertyHandler) List(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ids, errIDs := h.sightings.PropertyIDsFor(user)
	if errIDs != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query properties failed"})
		return
	}
	if len(ids) == 0 {
		c.JSON(http.StatusOK, gin.H{"properties": []models.Property{}})
		return
	}

	var properties []models.Property
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("id IN ?", ids).
		Order("name").
		Find(&properties).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query properties failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"properties": properties})
}

// addMemberRequest captures the payload for linking a user to a property.
type addMemberRequest struct {
	UserID uint64 `json:"user_id"` // Account to link.
}

// AddMember links a user to a property.
func (h *PropertyHandler) AddMember(c *gin.Context) {
	propertyID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body addMemberRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ctx := c.Request.Context()
	if errFind := h.db.WithContext(ctx).First(&models.Property{}, propertyID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "property not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query property failed"})
		return
	}
	if errFind := h.db.WithContext(ctx).First(&models.User{}, body.UserID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	link := models.UserProperty{UserID: body.UserID, PropertyID: propertyID}
	if errCreate := h.db.WithContext(ctx).Create(&link).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusConflict, gin.H{"error": "user is already a member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create membership failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"membership": link})
}

// RemoveMember unlinks a user from a property.
func (h *PropertyHandler) RemoveMember(c *gin.Context) {
	propertyID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	userID, errParseUser := strconv.ParseUint(c.Param("userID"), 10, 64)
	if errParseUser != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? AND property_id = ?", userID, propertyID).
		Delete(&models.UserProperty{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete membership failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
