package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
)

// AliasProvider supplies optional group aliases, typically the Redis
// runtime settings store. Lookups are best effort.
type AliasProvider interface {
	Alias(ctx context.Context, groupID string) (string, bool)
}

// SessionRepo resolves session references against the chat logger's
// session table. A circuit breaker keeps a struggling database from being
// hammered by the hot path; an open breaker surfaces as a transient error.
type SessionRepo struct {
	pool    *pgxpool.Pool
	aliases AliasProvider
	breaker *gobreaker.CircuitBreaker
}

var _ domain.SessionResolver = (*SessionRepo)(nil)

// NewSessionRepo builds a SessionRepo. aliases may be nil.
func NewSessionRepo(pool *pgxpool.Pool, aliases AliasProvider) *SessionRepo {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "session-lookup",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// Unknown sessions are a valid answer, not a database failure.
			return err == nil || errors.Is(err, domain.ErrSessionNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("lookup circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &SessionRepo{pool: pool, aliases: aliases, breaker: breaker}
}

// ResolveSession returns group and account metadata for a session
// reference. Only group-chat sessions (level 2) resolve; everything else
// is ErrSessionNotFound.
func (r *SessionRepo) ResolveSession(ctx context.Context, sessionRef int64) (domain.SessionInfo, error) {
	result, err := r.breaker.Execute(func() (any, error) {
		var userID, groupID string
		err := r.pool.QueryRow(ctx, `
			SELECT id1, id2
			FROM nonebot_plugin_session_orm_sessionmodel
			WHERE id = $1 AND level = 2
		`, sessionRef).Scan(&userID, &groupID)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SessionInfo{}, fmt.Errorf("session %d: %w", sessionRef, domain.ErrSessionNotFound)
		}
		if err != nil {
			return domain.SessionInfo{}, fmt.Errorf("query session %d: %w", sessionRef, err)
		}
		return domain.SessionInfo{SessionRef: sessionRef, GroupID: groupID, UserID: userID}, nil
	})
	if err != nil {
		return domain.SessionInfo{}, err
	}

	info := result.(domain.SessionInfo)
	if r.aliases != nil {
		if alias, ok := r.aliases.Alias(ctx, info.GroupID); ok {
			info.GroupAlias = alias
		}
	}
	return info, nil
}

// ListGroups returns every distinct group chat, each with its most recent
// session reference.
func (r *SessionRepo) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (id2) id, id2
		FROM nonebot_plugin_session_orm_sessionmodel
		WHERE level = 2
		ORDER BY id2, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.SessionRef, &g.GroupID); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if r.aliases != nil {
			if alias, ok := r.aliases.Alias(ctx, g.GroupID); ok {
				g.Alias = alias
			}
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}
	return groups, nil
}
