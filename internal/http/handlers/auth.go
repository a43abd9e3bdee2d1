package handlers

import (
	"net/http"
	"strconv"

	"number_merge_game/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthRequest struct {
	InitData string `json:"init_data"`
}

// Auth exchanges Telegram WebApp init data for an API token.
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if len(req.InitData) > 4096 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "init_data too long"})
		return
	}

	tgUser, ok := service.TelegramUserFromInitData(req.InitData, h.BotToken)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or stale telegram data"})
		return
	}

	userID := strconv.FormatInt(tgUser.ID, 10)
	name := tgUser.DisplayName()
	token, err := service.GenerateJWT(userID, name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	ctx := c.Request.Context()
	// заводим запись игрока при первом входе
	rec, err := h.Sessions.PlayerRecord(ctx, userID, name)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.Audit != nil {
		h.Audit.LogLogin(ctx, userID, map[string]any{"ip": c.ClientIP()})
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":       userID,
			"username": name,
			"record":   rec,
		},
	})
}
