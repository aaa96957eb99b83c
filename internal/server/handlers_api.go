package server

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
	apperrors "github.com/F1Justin/Chat-Message-Danmaku-System/internal/errors"
)

func (s *Server) handleListGroups(c echo.Context) error {
	groups, err := s.groups.ListGroups(c.Request().Context())
	if err != nil {
		return apperrors.UnavailableError("failed to list groups", err)
	}

	// Listed rows are fresh session→group mappings; prime the enrichment
	// cache so the feed path skips the lookup for them.
	for _, g := range groups {
		s.cache.Store(domain.SessionInfo{
			SessionRef: g.SessionRef,
			GroupID:    g.GroupID,
			GroupAlias: g.Alias,
		})
	}

	if err := c.JSON(200, map[string]any{"groups": groups}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRecentMessages(c echo.Context) error {
	groupID := c.Param("groupID")
	if groupID == "" {
		return apperrors.ValidationError("group id is required")
	}

	events := s.window.Snapshot(domain.NewFilter(true, []string{groupID}))

	if err := c.JSON(200, map[string]any{
		"group_id": groupID,
		"messages": events,
	}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetSettings(c echo.Context) error {
	settings, err := s.settings.Get(c.Request().Context())
	if err != nil {
		return apperrors.UnavailableError("failed to load settings", err)
	}

	if err := c.JSON(200, settings); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handlePutSettings(c echo.Context) error {
	var settings domain.RuntimeSettings
	if err := c.Bind(&settings); err != nil {
		return apperrors.ValidationError("malformed settings payload")
	}

	if settings.DanmakuSpeed < domain.MinDanmakuSpeed || settings.DanmakuSpeed > domain.MaxDanmakuSpeed {
		return apperrors.ValidationError("danmaku speed out of range").
			WithContext("min", domain.MinDanmakuSpeed).
			WithContext("max", domain.MaxDanmakuSpeed)
	}
	if settings.GroupAliases == nil {
		settings.GroupAliases = map[string]string{}
	}
	if settings.FavoriteGroups == nil {
		settings.FavoriteGroups = []string{}
	}

	if err := s.settings.Save(c.Request().Context(), settings); err != nil {
		return apperrors.UnavailableError("failed to save settings", err)
	}

	// Push the change to connected viewers so they re-render immediately.
	s.broadcaster.Announce(domain.SettingUpdate{
		Type:  domain.MessageTypeSettingUpdate,
		Key:   "runtime_settings",
		Value: settings,
	})

	if err := c.JSON(200, settings); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
