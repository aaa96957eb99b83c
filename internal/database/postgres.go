package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("database connected", "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// EnsureFeedTrigger installs the NOTIFY trigger on the chat logger's
// message table. Idempotent; safe to run on every startup. The payload is
// compact JSON with the message text truncated well under Postgres's 8000
// byte NOTIFY limit.
func EnsureFeedTrigger(ctx context.Context, pool *pgxpool.Pool, channel string) error {
	statements := []string{
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION danmaku_notify_message() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(%s, json_build_object(
		'id', NEW.id,
		'session_persist_id', NEW.session_persist_id,
		'message_id', NEW.message_id,
		'plain_text', left(NEW.plain_text, 1000),
		'time', to_char(NEW.time, 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')
	)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`, quoteLiteral(channel)),
		`DROP TRIGGER IF EXISTS danmaku_notify_message_trigger ON nonebot_plugin_chatrecorder_messagerecord`,
		`CREATE TRIGGER danmaku_notify_message_trigger
			AFTER INSERT ON nonebot_plugin_chatrecorder_messagerecord
			FOR EACH ROW
			WHEN (NEW.type = 'message' AND NEW.plain_text <> '')
			EXECUTE FUNCTION danmaku_notify_message()`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to install feed trigger: %w", err)
		}
	}

	slog.Info("feed trigger installed", "channel", channel)
	return nil
}

func quoteLiteral(s string) string {
	out := []byte{'\''}
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}
