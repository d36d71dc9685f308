package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pesttrack/pesttrack/internal/sightings"
)

// SightingHandler handles sighting CRUD and statistics endpoints.
type SightingHandler struct {
	service *sightings.Service
}

// NewSightingHandler constructs a sighting handler.
func NewSightingHandler(service *sightings.Service) *SightingHandler {
	return &SightingHandler{service: service}
}

// createSightingRequest captures the payload for logging a sighting.
type createSightingRequest struct {
	PropertyID  uint64     `json:"property_id"` // Property where the pest was seen.
	SightedAt   *time.Time `json:"sighted_at"`  // Observation time, default now.
	Location    string     `json:"location"`    // Spot within the property.
	RoomType    string     `json:"room_type"`   // Room category.
	PestCount   int        `json:"pest_count"`  // Number of pests, default 1.
	PestSize    string     `json:"pest_size"`   // small / medium / large.
	PestType    string     `json:"pest_type"`   // Species or description.
	Notes       string     `json:"notes"`       // Free-text notes.
	Weather     string     `json:"weather"`     // Weather at sighting time.
	Temperature *float64   `json:"temperature"` // Temperature, when recorded.
}

// Create logs a new sighting.
func (h *SightingHandler) Create(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createSightingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.PropertyID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property_id is required"})
		return
	}

	params := sightings.CreateParams{
		PropertyID:  body.PropertyID,
		Location:    body.Location,
		RoomType:    body.RoomType,
		PestCount:   body.PestCount,
		PestSize:    body.PestSize,
		PestType:    body.PestType,
		Notes:       body.Notes,
		Weather:     body.Weather,
		Temperature: body.Temperature,
	}
	if body.SightedAt != nil {
		params.SightedAt = *body.SightedAt
	}

	sighting, errCreate := h.service.Create(user, params)
	if errCreate != nil {
		if errors.Is(errCreate, sightings.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "no access to this property"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errCreate.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sighting": sighting})
}

// List returns visible sightings, optionally filtered by the q search
// term, property, pest type, and time range.
func (h *SightingHandler) List(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	filter := sightings.Filter{PestType: c.Query("pest_type")}
	if raw := c.Query("property_id"); raw != "" {
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid property_id"})
			return
		}
		filter.PropertyID = id
	}
	if raw := c.Query("from"); raw != "" {
		from, errParse := time.Parse(time.RFC3339, raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, errParse := time.Parse(time.RFC3339, raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		filter.To = &to
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	results, errList := h.service.Search(user, c.Query("q"), filter)
	if errList != nil {
		if errors.Is(errList, sightings.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "no access to this property"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query sightings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sightings": results})
}

// Get returns one sighting.
func (h *SightingHandler) Get(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	sighting, errGet := h.service.Get(user, id)
	if errGet != nil {
		h.renderServiceError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sighting": sighting})
}

// updateSightingRequest captures editable sighting fields. Absent
// fields stay unchanged.
type updateSightingRequest struct {
	SightedAt   *time.Time `json:"sighted_at"`
	Location    *string    `json:"location"`
	RoomType    *string    `json:"room_type"`
	PestCount   *int       `json:"pest_count"`
	PestSize    *string    `json:"pest_size"`
	PestType    *string    `json:"pest_type"`
	Notes       *string    `json:"notes"`
	Weather     *string    `json:"weather"`
	Temperature *float64   `json:"temperature"`
}

// Update edits a sighting.
func (h *SightingHandler) Update(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var body updateSightingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	sighting, errUpdate := h.service.Update(user, id, sightings.UpdateParams{
		SightedAt:   body.SightedAt,
		Location:    body.Location,
		RoomType:    body.RoomType,
		PestCount:   body.PestCount,
		PestSize:    body.PestSize,
		PestType:    body.PestType,
		Notes:       body.Notes,
		Weather:     body.Weather,
		Temperature: body.Temperature,
	})
	if errUpdate != nil {
		h.renderServiceError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sighting": sighting})
}

// Delete removes a sighting.
func (h *SightingHandler) Delete(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if errDelete := h.service.Delete(user, id); errDelete != nil {
		h.renderServiceError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats returns summary statistics for the visible sightings.
func (h *SightingHandler) Stats(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var propertyID uint64
	if raw := c.Query("property_id"); raw != "" {
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid property_id"})
			return
		}
		propertyID = id
	}

	stats, errStats := h.service.Stats(user, propertyID)
	if errStats != nil {
		if errors.Is(errStats, sightings.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "no access to this property"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query statistics failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *SightingHandler) renderServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sightings.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "sighting not found"})
	case errors.Is(err, sightings.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "no access to this sighting"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
