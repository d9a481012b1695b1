package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tasktrack/internal/service"
)

const ownerKey = "ownerID"

// RequireAuth resolves the bearer token to a user and stores its id on the context.
func RequireAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		user, err := auth.ResolveToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set(ownerKey, user.ID)
		c.Next()
	}
}

func ownerID(c *gin.Context) uint {
	return c.GetUint(ownerKey)
}
