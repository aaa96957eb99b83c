package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	FeedChannel        string `env:"FEED_CHANNEL" default:"danmaku_events"`
	InstallFeedTrigger bool   `env:"INSTALL_FEED_TRIGGER" default:"true"`

	HistoryCapacity     int `env:"HISTORY_CAPACITY" default:"200"`
	EnrichCacheSize     int `env:"ENRICH_CACHE_SIZE" default:"1024"`
	SubscriberQueueSize int `env:"SUBSCRIBER_QUEUE_SIZE" default:"64"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int `env:"MAX_CONNECTIONS_PER_IP" default:"20"`

	// Comma-separated list of allowed websocket origins. Empty means
	// same-host origins only.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	positive := map[string]int{
		"HISTORY_CAPACITY":          cfg.HistoryCapacity,
		"ENRICH_CACHE_SIZE":         cfg.EnrichCacheSize,
		"SUBSCRIBER_QUEUE_SIZE":     cfg.SubscriberQueueSize,
		"MAX_WEBSOCKET_CONNECTIONS": cfg.MaxWebSocketConnections,
		"MAX_CONNECTIONS_PER_IP":    cfg.MaxConnectionsPerIP,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}

	if strings.TrimSpace(cfg.FeedChannel) == "" {
		return fmt.Errorf("FEED_CHANNEL must not be empty")
	}

	return nil
}

// Origins returns the allowed origins as a slice, trimming whitespace and
// dropping empty entries.
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
