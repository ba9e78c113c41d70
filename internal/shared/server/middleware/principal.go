package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"creditdocs-backend/internal/shared/storage/object"
)

const (
	ownerIDKey   = "ownerId"
	anonymousKey = "anonymous"

	maxOwnerIDLen = 128
)

// Principal resolves the caller that owns uploaded documents and reports.
// The X-User-Id header names the owner; without it the caller is an
// anonymous principal derived from the client IP.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if owner := strings.TrimSpace(c.GetHeader("X-User-Id")); owner != "" {
			if len(owner) > maxOwnerIDLen {
				owner = owner[:maxOwnerIDLen]
			}
			c.Set(ownerIDKey, owner)
			c.Set(anonymousKey, false)
			c.Next()
			return
		}

		c.Set(ownerIDKey, "anon:"+object.OwnerDir(c.ClientIP())[:16])
		c.Set(anonymousKey, true)
		c.Next()
	}
}

// OwnerIDFromContext fetches the owner ID set by the Principal middleware.
func OwnerIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(ownerIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// IsAnonymous reports whether the owner was derived from the client IP.
func IsAnonymous(c *gin.Context) bool {
	if c == nil {
		return true
	}
	val, ok := c.Get(anonymousKey)
	if !ok {
		return true
	}
	anon, _ := val.(bool)
	return anon
}
