package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pesttrack/pesttrack/internal/audit"
)

// AuditHandler exposes the security event trail to admins.
type AuditHandler struct {
	recorder *audit.Recorder
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

// List returns recent security events, newest first, optionally
// filtered by event_type and username.
func (h *AuditHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, errList := h.recorder.Recent(c.Query("event_type"), c.Query("username"), limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query audit events failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
