package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pesttrack/pesttrack/internal/settings"
)

// SiteHandler serves public site metadata.
type SiteHandler struct {
	db *gorm.DB
}

// NewSiteHandler constructs a SiteHandler.
func NewSiteHandler(db *gorm.DB) *SiteHandler {
	return &SiteHandler{db: db}
}

// Info returns the configured site name.
func (h *SiteHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"site_name": settings.SiteName(h.db.WithContext(c.Request.Context()))})
}
