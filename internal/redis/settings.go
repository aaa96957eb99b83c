package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
)

const (
	aliasesKey   = "danmaku:settings:group_aliases"
	favoritesKey = "danmaku:settings:favorite_groups"
	speedKey     = "danmaku:settings:danmaku_speed"
)

// SettingsStore persists RuntimeSettings in Redis. Aliases live in a hash so
// single-group lookups during enrichment stay O(1).
type SettingsStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewSettingsStore creates a settings store backed by the given client.
func NewSettingsStore(client *redis.Client, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{
		client: client,
		logger: logger.With("component", "settings_store"),
	}
}

// Get loads the current settings. Missing keys fall back to defaults, so a
// fresh Redis instance behaves like an unconfigured deployment.
func (s *SettingsStore) Get(ctx context.Context) (domain.RuntimeSettings, error) {
	settings := domain.DefaultRuntimeSettings()

	aliases, err := s.client.HGetAll(ctx, aliasesKey).Result()
	if err != nil {
		return settings, fmt.Errorf("failed to load group aliases: %w", err)
	}
	if len(aliases) > 0 {
		settings.GroupAliases = aliases
	}

	favorites, err := s.client.SMembers(ctx, favoritesKey).Result()
	if err != nil {
		return settings, fmt.Errorf("failed to load favorite groups: %w", err)
	}
	if len(favorites) > 0 {
		settings.FavoriteGroups = favorites
	}

	speed, err := s.client.Get(ctx, speedKey).Result()
	switch {
	case err == redis.Nil:
		// keep default
	case err != nil:
		return settings, fmt.Errorf("failed to load danmaku speed: %w", err)
	default:
		parsed, parseErr := strconv.Atoi(speed)
		if parseErr != nil || parsed < domain.MinDanmakuSpeed || parsed > domain.MaxDanmakuSpeed {
			s.logger.Warn("ignoring invalid stored danmaku speed", "value", speed)
		} else {
			settings.DanmakuSpeed = parsed
		}
	}

	return settings, nil
}

// Save replaces the stored settings atomically. Speed outside the allowed
// range is rejected before anything is written.
func (s *SettingsStore) Save(ctx context.Context, settings domain.RuntimeSettings) error {
	if settings.DanmakuSpeed < domain.MinDanmakuSpeed || settings.DanmakuSpeed > domain.MaxDanmakuSpeed {
		return fmt.Errorf("danmaku speed %d out of range [%d, %d]",
			settings.DanmakuSpeed, domain.MinDanmakuSpeed, domain.MaxDanmakuSpeed)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, aliasesKey, favoritesKey)
	if len(settings.GroupAliases) > 0 {
		fields := make(map[string]any, len(settings.GroupAliases))
		for groupID, alias := range settings.GroupAliases {
			fields[groupID] = alias
		}
		pipe.HSet(ctx, aliasesKey, fields)
	}
	if len(settings.FavoriteGroups) > 0 {
		members := make([]any, 0, len(settings.FavoriteGroups))
		for _, groupID := range settings.FavoriteGroups {
			members = append(members, groupID)
		}
		pipe.SAdd(ctx, favoritesKey, members...)
	}
	pipe.Set(ctx, speedKey, strconv.Itoa(settings.DanmakuSpeed), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Alias looks up the operator-assigned alias for a group. It reports false
// when no alias is set or Redis is unreachable, so callers can fall back to
// the raw group id.
func (s *SettingsStore) Alias(ctx context.Context, groupID string) (string, bool) {
	alias, err := s.client.HGet(ctx, aliasesKey, groupID).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.logger.Warn("alias lookup failed", "group_id", groupID, "error", err)
		return "", false
	}
	return alias, alias != ""
}
