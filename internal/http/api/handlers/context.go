package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/pesttrack/pesttrack/internal/models"
)

// currentUserKey is the context key carrying the authenticated account.
const currentUserKey = "currentUser"

// SetCurrentUser stores the authenticated account on the request context.
func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(currentUserKey, user)
}

// CurrentUser returns the authenticated account, or nil outside an
// authenticated route.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
