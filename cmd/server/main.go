package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/broadcast"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/config"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/database"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/enrich"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/feed"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/history"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/logging"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/redis"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/server"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/version"
)

const sessionCacheTTL = 5 * time.Minute

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.InstallFeedTrigger {
		if err := database.EnsureFeedTrigger(ctx, pool, cfg.FeedChannel); err != nil {
			slog.Error("Failed to install feed trigger", "error", err)
			os.Exit(1)
		}
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, broadcaster *broadcast.Broadcaster, stopFeed context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopFeed()
		broadcaster.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "build", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	settings := redis.NewSettingsStore(redisClient, slog.Default())
	sessions := database.NewSessionRepo(pool, settings)
	cache := enrich.New(sessions, cfg.EnrichCacheSize, sessionCacheTTL)
	window := history.NewWindow(cfg.HistoryCapacity)

	broadcaster := broadcast.NewBroadcaster(clock, cfg.SubscriberQueueSize)

	listener := feed.NewListener(pool, cfg.FeedChannel, cache, broadcaster, window, clock)
	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	go func() {
		if err := listener.Run(feedCtx); err != nil && !errors.Is(err, context.Canceled) {
			// Run only returns on fatal errors (bad credentials).
			slog.Error("Change feed terminated", "error", err)
			os.Exit(1)
		}
	}()

	srv := server.NewServer(cfg, broadcaster, window, sessions, settings, cache, listener, pool, redisClient)

	done := runGracefulShutdown(srv, broadcaster, stopFeed)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
