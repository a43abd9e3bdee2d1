package ws

import (
	"net/http"
	"strings"

	"number_merge_game/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HandleWS upgrades GET /ws?guild=…&token=… and subscribes the caller to the
// group's renders. allowedOrigin empty accepts any origin.
func HandleWS(hub *Hub, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		id, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		guildID := strings.TrimSpace(c.Query("guild"))
		if guildID == "" {
			guildID = service.PrivateChatGuild(id.UserID)
		}
		if !service.CanActIn(guildID, id.UserID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		var initial *service.RenderRequest
		if cmd := hub.commander(); cmd != nil {
			if _, r, err := cmd.State(c.Request.Context(), guildID); err == nil {
				initial = r
			} else {
				hub.log.Warn("failed to load initial state", "guild_id", guildID, "err", err)
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("ws upgrade error", "err", err)
			return
		}

		client := NewClient(id.UserID, guildID, conn, hub)
		client.Run(initial)
	}
}
