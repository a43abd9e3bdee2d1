package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MyBalance returns the caller's balance and latest ledger entries
func (h *Handler) MyBalance(c *gin.Context) {
	id, ok := getIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.Wallet == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	}

	ctx := c.Request.Context()
	balance, err := h.Wallet.GetBalance(ctx, id.UserID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	}

	history, err := h.Wallet.GetTransactionHistory(ctx, id.UserID, 50)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": id.UserID,
		"balance": balance,
		"history": history,
	})
}
