package handlers

import (
	"context"
	"net/http"

	"number_merge_game/internal/domain"
	"number_merge_game/internal/service"

	"github.com/gin-gonic/gin"
)

// Wallet is the read side of the ledger shown to players.
type Wallet interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetTransactionHistory(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
}

// LoginAuditor records successful WebApp logins.
type LoginAuditor interface {
	LogLogin(ctx context.Context, userID string, details map[string]any)
}

type Handler struct {
	Sessions *service.SessionService
	Wallet   Wallet
	Audit    LoginAuditor
	BotToken string
}

func NewHandler(sessions *service.SessionService, wallet Wallet, audit LoginAuditor, botToken string) *Handler {
	return &Handler{
		Sessions: sessions,
		Wallet:   wallet,
		Audit:    audit,
		BotToken: botToken,
	}
}

// getIdentity извлекает пользователя, положенного JWT middleware
func getIdentity(c *gin.Context) (service.Identity, bool) {
	v, ok := c.Get("identity")
	if !ok {
		return service.Identity{}, false
	}
	id, ok := v.(service.Identity)
	return id, ok && id.UserID != ""
}

// statusFor maps an error kind to the HTTP status it is reported with.
func statusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindIllegalTransition:
		return http.StatusConflict
	case service.KindInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusServiceUnavailable
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		// collaborator details stay in the logs
		msg = "service temporarily unavailable"
	}
	c.JSON(status, gin.H{"error": msg, "kind": service.KindOf(err).String()})
}
