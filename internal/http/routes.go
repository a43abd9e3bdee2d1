package http

import (
	"time"

	"number_merge_game/internal/http/handlers"
	"number_merge_game/internal/http/middleware"
	"number_merge_game/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteConfig holds what the router needs besides the handlers.
type RouteConfig struct {
	APIRateLimit      int
	APIRateWindow     time.Duration
	AuthRateLimit     int
	AuthRateWindow    time.Duration
	CommandRateLimit  int
	CommandRateWindow time.Duration
	AllowedOrigin     string
}

func (c RouteConfig) withDefaults() RouteConfig {
	if c.APIRateLimit <= 0 {
		c.APIRateLimit = 60
	}
	if c.APIRateWindow <= 0 {
		c.APIRateWindow = time.Minute
	}
	if c.AuthRateLimit <= 0 {
		c.AuthRateLimit = 5
	}
	if c.AuthRateWindow <= 0 {
		c.AuthRateWindow = time.Minute
	}
	if c.CommandRateLimit <= 0 {
		c.CommandRateLimit = 60
	}
	if c.CommandRateWindow <= 0 {
		c.CommandRateWindow = time.Minute
	}
	return c
}

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, health *handlers.HealthHandler, hub *ws.Hub, cfg RouteConfig) {
	cfg = cfg.withDefaults()

	r.Use(middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, h, cfg)

	// Render push for a group
	r.GET("/ws", ws.HandleWS(hub, cfg.AllowedOrigin))
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, cfg RouteConfig) {
	// Auth
	api.POST("/auth", middleware.RateLimit(cfg.AuthRateLimit, cfg.AuthRateWindow), h.Auth)

	// Group sessions
	cmdRL := middleware.UserRateLimit(cfg.CommandRateLimit, cfg.CommandRateWindow)
	groups := api.Group("/groups/:guild")
	{
		groups.GET("/state", h.State)
		groups.GET("/best", h.Best)

		groups.POST("/join", middleware.JWT(), cmdRL, h.Join)
		groups.POST("/leave", middleware.JWT(), cmdRL, h.Leave)
		groups.POST("/start", middleware.JWT(), cmdRL, h.Start)
		groups.POST("/reset", middleware.JWT(), cmdRL, h.Reset)
		groups.POST("/move", middleware.JWT(), cmdRL, h.Move)
		groups.POST("/reply", middleware.JWT(), cmdRL, h.Reply)
		groups.POST("/decision", middleware.JWT(), cmdRL, h.Decision)
	}

	// Records
	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/players/:id/record", h.GetPlayerRecord)
	api.GET("/me/record", middleware.JWT(), h.GetMyRecord)
	api.GET("/me/balance", middleware.JWT(), h.MyBalance)
}
