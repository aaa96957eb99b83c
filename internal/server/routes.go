package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/version", s.handleVersion)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Viewer websocket
	s.echo.GET("/ws", s.handleWebSocket)

	// Control-panel API
	s.echo.GET("/api/groups", s.handleListGroups)
	s.echo.GET("/api/recent-messages/:groupID", s.handleRecentMessages)
	s.echo.GET("/api/settings", s.handleGetSettings)
	s.echo.PUT("/api/settings", s.handlePutSettings)
}
