package config

import (
	"errors"
	"fmt"
	"time"

	"number_merge_game/internal/game"
	"number_merge_game/internal/logger"
	"number_merge_game/internal/service"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string `env:"APP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	BotToken    string `env:"BOT_TOKEN"`
	BotEnabled  bool   `env:"BOT_ENABLED" envDefault:"false"`
	// Пустой адрес - работаем без Redis (только локальные блокировки)
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"30s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`

	// Лимиты API: запросов за окно
	APIRateLimit  int           `env:"API_RATE_LIMIT" envDefault:"60"`
	APIRateWindow time.Duration `env:"API_RATE_WINDOW" envDefault:"60s"`
	// Origin фронтенда для CORS и WebSocket, пусто - любой
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`

	SweepInterval time.Duration `env:"PROMPT_SWEEP_INTERVAL" envDefault:"5s"`

	// Правила игры
	DefaultGridSize             int           `env:"DEFAULT_GRID_SIZE" envDefault:"4"`
	MaxWager                    int64         `env:"MAX_WAGER" envDefault:"50"`
	LeaderboardSize             int           `env:"DEFAULT_LEADERBOARD_SIZE" envDefault:"10"`
	WinMultiplier               float64       `env:"WIN_MULTIPLIER" envDefault:"2"`
	ImageType                   string        `env:"IMAGE_TYPE" envDefault:"png"`
	EnableKeepPlaying           bool          `env:"ENABLE_KEEP_PLAYING" envDefault:"true"`
	RewardHighNumbers           bool          `env:"REWARD_HIGH_NUMBERS" envDefault:"true"`
	IncrementalHighNumberReward bool          `env:"INCREMENTAL_HIGH_NUMBER_REWARD" envDefault:"true"`
	ReconcileFlatBonus          bool          `env:"RECONCILE_FLAT_BONUS" envDefault:"false"`
	PromptAttempts              int           `env:"CONTINUE_PROMPT_ATTEMPTS" envDefault:"3"`
	PromptTimeout               time.Duration `env:"PROMPT_TIMEOUT" envDefault:"60s"`
}

var imageTypes = map[string]bool{"png": true, "jpeg": true, "webp": true}

// Parse reads the environment (and .env if present) without exiting.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Загрузка конфига из env, любая ошибка фатальна
func Load() *Config {
	cfg, err := Parse()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}
	if cfg.BotEnabled && cfg.BotToken == "" {
		logger.Fatal("BOT_TOKEN is not set")
	}
	return cfg
}

// Validate rejects rule values the game cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if !game.ValidGridSize(c.DefaultGridSize) {
		errs = append(errs, fmt.Errorf("DEFAULT_GRID_SIZE must be in [%d, %d], got %d", game.MinGridSize, game.MaxGridSize, c.DefaultGridSize))
	}
	if !imageTypes[c.ImageType] {
		errs = append(errs, fmt.Errorf("IMAGE_TYPE must be png, jpeg or webp, got %q", c.ImageType))
	}
	if c.MaxWager < 0 {
		errs = append(errs, errors.New("MAX_WAGER must not be negative"))
	}
	if c.WinMultiplier < 0 {
		errs = append(errs, errors.New("WIN_MULTIPLIER must not be negative"))
	}
	if c.LeaderboardSize <= 0 {
		errs = append(errs, errors.New("DEFAULT_LEADERBOARD_SIZE must be positive"))
	}
	if c.PromptAttempts <= 0 {
		errs = append(errs, errors.New("CONTINUE_PROMPT_ATTEMPTS must be positive"))
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"PROMPT_TIMEOUT", c.PromptTimeout},
		{"PROMPT_SWEEP_INTERVAL", c.SweepInterval},
		{"LOCK_TTL", c.LockTTL},
	} {
		if d.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.val))
		}
	}
	return errors.Join(errs...)
}

// Rules converts the game settings for the session service.
func (c *Config) Rules() service.Rules {
	return service.Rules{
		DefaultGridSize:             c.DefaultGridSize,
		MaxWager:                    c.MaxWager,
		LeaderboardSize:             c.LeaderboardSize,
		WinMultiplier:               c.WinMultiplier,
		ImageType:                   c.ImageType,
		EnableKeepPlaying:           c.EnableKeepPlaying,
		RewardHighNumbers:           c.RewardHighNumbers,
		IncrementalHighNumberReward: c.IncrementalHighNumberReward,
		ReconcileFlatBonus:          c.ReconcileFlatBonus,
		PromptAttempts:              c.PromptAttempts,
		PromptTimeout:               c.PromptTimeout,
	}
}
