package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetLeaderboard ranks players: ?metric=wins|losses|best_score&limit=N
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	top, metric, err := h.Sessions.Leaderboard(c.Request.Context(), c.Query("metric"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard": top,
		"metric":      metric,
	})
}

// GetPlayerRecord returns another player's record, creating an empty one on
// first lookup.
func (h *Handler) GetPlayerRecord(c *gin.Context) {
	rec, err := h.Sessions.PlayerRecord(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetMyRecord(c *gin.Context) {
	id, ok := getIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	rec, err := h.Sessions.PlayerRecord(c.Request.Context(), id.UserID, id.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
