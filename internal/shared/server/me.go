package server

import (
	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/shared/server/middleware"
	"creditdocs-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

// meHandler echoes the resolved principal so clients can find their reports.
func meHandler(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	if ownerID == "" {
		respond.Internal(c, "principal not resolved", nil)
		return
	}
	respond.OK(c, gin.H{
		"ownerId":   ownerID,
		"anonymous": middleware.IsAnonymous(c),
	})
}
