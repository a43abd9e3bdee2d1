package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"number_merge_game/internal/bot"
	"number_merge_game/internal/config"
	"number_merge_game/internal/db"
	httpServer "number_merge_game/internal/http"
	"number_merge_game/internal/http/handlers"
	"number_merge_game/internal/http/middleware"
	"number_merge_game/internal/lock"
	"number_merge_game/internal/logger"
	"number_merge_game/internal/migrations"
	"number_merge_game/internal/repository"
	"number_merge_game/internal/service"
	"number_merge_game/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
	n, err := db.Migrate(migrateCtx, dbPool, migrations.FS)
	cancelMigrate()
	if err != nil {
		logger.Fatal("failed to apply migrations", "err", err)
	}
	if n > 0 {
		logger.Info("migrations applied", "count", n)
	}

	deps := map[string]handlers.Pinger{}
	locks := service.NewLockManager()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		middleware.UseRedis(rdb)
		locks = service.NewLockManager(service.WithDistributedLocker(lock.NewRedisLocker(rdb, "merge:lock:"), cfg.LockTTL))
		deps["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		logger.Info("redis enabled", "addr", cfg.RedisAddr)
	}

	ledger := service.NewBalanceService(dbPool)
	audit := service.NewAuditService(dbPool)
	hub := ws.NewHub(nil)

	sessions := service.NewSessionService(
		repository.NewPostgresStore(dbPool),
		ledger,
		cfg.Rules(),
		service.WithPublisher(hub),
		service.WithAuditor(audit),
		service.WithLockManager(locks),
	)
	hub.SetCommander(sessions)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sessions.RunSweeper(ctx, cfg.SweepInterval)
	hub.StartCleanup(ctx, time.Minute)

	var gameBot *bot.GameBot
	if cfg.BotEnabled {
		gameBot, err = bot.NewGameBot(cfg.BotToken, sessions)
		if err != nil {
			logger.Fatal("failed to start telegram bot", "err", err)
		}
		go gameBot.Start()
	}

	if !cfg.LogJSON && cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	h := handlers.NewHandler(sessions, ledger, audit, cfg.BotToken)
	health := handlers.NewHealthHandler(dbPool, version, deps)
	httpServer.RegisterRoutes(r, h, health, hub, httpServer.RouteConfig{
		APIRateLimit:  cfg.APIRateLimit,
		APIRateWindow: cfg.APIRateWindow,
		AllowedOrigin: cfg.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	if gameBot != nil {
		gameBot.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}

	logger.Info("server exited")
}
