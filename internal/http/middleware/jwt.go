package middleware

import (
	"net/http"
	"strings"

	"number_merge_game/internal/logger"
	"number_merge_game/internal/service"

	"github.com/gin-gonic/gin"
)

// JWT requires a valid API token in the Authorization header (or ?token=
// for clients that cannot set headers) and stores the identity on the
// context under "identity" and "user_id".
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		id, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("identity", id)
		c.Set("user_id", id.UserID)
		c.Request = c.Request.WithContext(logger.IntoContext(c.Request.Context(), "user_id", id.UserID))
		c.Next()
	}
}
