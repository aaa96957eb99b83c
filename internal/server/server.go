package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/broadcast"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/config"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
	apperrors "github.com/F1Justin/Chat-Message-Danmaku-System/internal/errors"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/feed"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/history"
)

// groupLister lists the known chat groups from the lookup database.
type groupLister interface {
	ListGroups(ctx context.Context) ([]domain.Group, error)
}

// settingsStore persists the operator-tunable runtime settings.
type settingsStore interface {
	Get(ctx context.Context) (domain.RuntimeSettings, error)
	Save(ctx context.Context, settings domain.RuntimeSettings) error
}

// sessionCache accepts already-resolved session info, so group listings
// prime the enrichment path without a second database round trip.
type sessionCache interface {
	Store(info domain.SessionInfo)
}

// feedStatus reports the change-feed subscription state.
type feedStatus interface {
	State() feed.State
}

// postgresHealthChecker is a minimal interface for PostgreSQL health checks.
type postgresHealthChecker interface {
	Ping(ctx context.Context) error
}

// redisHealthChecker is a minimal interface for Redis health checks.
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	broadcaster *broadcast.Broadcaster
	window      *history.Window
	groups      groupLister
	settings    settingsStore
	cache       sessionCache
	feed        feedStatus
	db          postgresHealthChecker
	redisClient redisHealthChecker
	limits      *ConnectionLimits
	origin      *originChecker
}

func NewServer(
	cfg *config.Config,
	broadcaster *broadcast.Broadcaster,
	window *history.Window,
	groups groupLister,
	settings settingsStore,
	cache sessionCache,
	feedState feedStatus,
	db postgresHealthChecker,
	redisClient redisHealthChecker,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(requestIDMiddleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		broadcaster: broadcaster,
		window:      window,
		groups:      groups,
		settings:    settings,
		cache:       cache,
		feed:        feedState,
		db:          db,
		redisClient: redisClient,
		limits:      NewConnectionLimits(int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP),
		origin:      newOriginChecker(cfg.Origins(), !cfg.IsProduction()),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
