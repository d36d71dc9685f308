// Package api wires the HTTP surface: route registration and the
// authentication middleware chain.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pesttrack/pesttrack/internal/audit"
	"github.com/pesttrack/pesttrack/internal/auth"
	"github.com/pesttrack/pesttrack/internal/http/api/handlers"
	"github.com/pesttrack/pesttrack/internal/models"
	"github.com/pesttrack/pesttrack/internal/security"
	"github.com/pesttrack/pesttrack/internal/sightings"
	"github.com/pesttrack/pesttrack/internal/users"
)

// Deps carries the wired services consumed by the HTTP handlers.
type Deps struct {
	DB        *gorm.DB
	Tokens    *security.TokenIssuer
	Authority *auth.Authority
	Recorder  *audit.Recorder
	Users     *users.Service
	Sightings *sightings.Service
}

// RegisterRoutes registers all API routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	apiGroup := r.Group("/v0")

	siteHandler := handlers.NewSiteHandler(deps.DB)
	apiGroup.GET("/site", siteHandler.Info)

	authHandler := handlers.NewAuthHandler(deps.Authority)
	apiGroup.POST("/auth/register", authHandler.Register)
	apiGroup.POST("/auth/login", authHandler.Login)

	authed := apiGroup.Group("")
	authed.Use(authMiddleware(deps.DB, deps.Tokens))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.PUT("/auth/password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	sightingHandler := handlers.NewSightingHandler(deps.Sightings)
	authed.POST("/sightings", sightingHandler.Create)
	authed.GET("/sightings", sightingHandler.List)
	authed.GET("/sightings/:id", sightingHandler.Get)
	authed.PUT("/sightings/:id", sightingHandler.Update)
	authed.DELETE("/sightings/:id", sightingHandler.Delete)
	authed.GET("/stats", sightingHandler.Stats)

	propertyHandler := handlers.NewPropertyHandler(deps.DB, deps.Sightings)
	authed.GET("/properties", propertyHandler.List)

	admin := authed.Group("")
	admin.Use(requireRole(deps.Recorder, models.RoleAdmin))

	admin.POST("/properties", propertyHandler.Create)
	admin.POST("/properties/:id/members", propertyHandler.AddMember)
	admin.DELETE("/properties/:id/members/:userID", propertyHandler.RemoveMember)

	userHandler := handlers.NewUserHandler(deps.DB, deps.Users)
	admin.POST("/users", userHandler.Create)
	admin.GET("/users", userHandler.List)
	admin.GET("/users/:id", userHandler.Get)
	admin.DELETE("/users/:id", userHandler.Delete)
	admin.POST("/users/:id/enable", userHandler.Enable)
	admin.POST("/users/:id/disable", userHandler.Disable)

	auditHandler := handlers.NewAuditHandler(deps.Recorder)
	admin.GET("/audit", auditHandler.List)
}

// authMiddleware validates the bearer token and loads the account it
// names into the request context.
func authMiddleware(db *gorm.DB, tokens *security.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := tokens.Parse(token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account is deactivated"})
			return
		}

		handlers.SetCurrentUser(c, &user)
		c.Next()
	}
}

// requireRole denies the request unless the current user holds one of
// the roles, recording the denial in the audit trail.
func requireRole(recorder *audit.Recorder, roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := handlers.CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		if errRecord := recorder.Record(audit.Entry{
			EventType:  audit.EventUnauthorizedAccess,
			Username:   user.Username,
			UserID:     &user.ID,
			SourceAddr: c.ClientIP(),
			Detail:     c.Request.Method + " " + c.FullPath(),
		}); errRecord != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}
