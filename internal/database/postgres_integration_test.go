package database

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
)

const testFeedChannel = "danmaku_events_test"

var (
	testPool        *pgxpool.Pool
	testDatabaseURL string
)

func TestMain(m *testing.M) {
	flag.Parse()

	// Skip container setup if running in short mode
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
		os.Exit(1)
	}
	testDatabaseURL = connStr

	testPool, err = Connect(ctx, testDatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}

	if err := createChatLoggerSchema(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create schema: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	_ = postgresContainer.Terminate(ctx)
	os.Exit(code)
}

// createChatLoggerSchema mirrors the externally owned chat-log tables the
// relay reads from.
func createChatLoggerSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS nonebot_plugin_session_orm_sessionmodel (
			id BIGSERIAL PRIMARY KEY,
			bot_id VARCHAR(64) NOT NULL DEFAULT '',
			bot_type VARCHAR(32) NOT NULL DEFAULT '',
			platform VARCHAR(32) NOT NULL DEFAULT '',
			level INTEGER NOT NULL,
			id1 VARCHAR(64) NOT NULL DEFAULT '',
			id2 VARCHAR(64) NOT NULL DEFAULT '',
			id3 VARCHAR(64) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS nonebot_plugin_chatrecorder_messagerecord (
			id BIGSERIAL PRIMARY KEY,
			session_persist_id BIGINT NOT NULL,
			time TIMESTAMP NOT NULL,
			type VARCHAR(32) NOT NULL,
			message_id VARCHAR(255) NOT NULL DEFAULT '',
			plain_text TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	_, err := testPool.Exec(ctx, `TRUNCATE nonebot_plugin_session_orm_sessionmodel, nonebot_plugin_chatrecorder_messagerecord RESTART IDENTITY`)
	require.NoError(t, err)
	return ctx
}

func insertSession(t *testing.T, ctx context.Context, level int, id1, id2 string) int64 {
	t.Helper()
	var id int64
	err := testPool.QueryRow(ctx, `
		INSERT INTO nonebot_plugin_session_orm_sessionmodel (level, id1, id2)
		VALUES ($1, $2, $3)
		RETURNING id
	`, level, id1, id2).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertMessage(t *testing.T, ctx context.Context, sessionRef int64, msgType, text string) {
	t.Helper()
	_, err := testPool.Exec(ctx, `
		INSERT INTO nonebot_plugin_chatrecorder_messagerecord (session_persist_id, time, type, message_id, plain_text)
		VALUES ($1, now(), $2, 'msg-1', $3)
	`, sessionRef, msgType, text)
	require.NoError(t, err)
}

func TestEnsureFeedTrigger_Idempotent(t *testing.T) {
	ctx := setupIntegration(t)

	require.NoError(t, EnsureFeedTrigger(ctx, testPool, testFeedChannel))
	require.NoError(t, EnsureFeedTrigger(ctx, testPool, testFeedChannel))
}

func TestFeedTrigger_NotifiesOnMessageInsert(t *testing.T) {
	ctx := setupIntegration(t)
	require.NoError(t, EnsureFeedTrigger(ctx, testPool, testFeedChannel))

	conn, err := testPool.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	_, err = conn.Exec(ctx, "LISTEN "+testFeedChannel)
	require.NoError(t, err)

	sessionRef := insertSession(t, ctx, 2, "10001", "20002")

	// Non-message rows and empty texts must not fire the trigger.
	insertMessage(t, ctx, sessionRef, "notice", "joined the group")
	insertMessage(t, ctx, sessionRef, "message", "")
	insertMessage(t, ctx, sessionRef, "message", "hello danmaku")

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	notification, err := conn.Conn().WaitForNotification(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, testFeedChannel, notification.Channel)

	var payload struct {
		ID               int64  `json:"id"`
		SessionPersistID int64  `json:"session_persist_id"`
		MessageID        string `json:"message_id"`
		PlainText        string `json:"plain_text"`
		Time             string `json:"time"`
	}
	require.NoError(t, json.Unmarshal([]byte(notification.Payload), &payload))
	assert.Equal(t, sessionRef, payload.SessionPersistID)
	assert.Equal(t, "hello danmaku", payload.PlainText)
	assert.Equal(t, "msg-1", payload.MessageID)
	assert.NotEmpty(t, payload.Time)

	// No further notification should be pending from the filtered rows.
	shortCtx, cancelShort := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancelShort()
	_, err = conn.Conn().WaitForNotification(shortCtx)
	assert.Error(t, err)
}

func TestSessionRepo_ResolveSession(t *testing.T) {
	ctx := setupIntegration(t)

	repo := NewSessionRepo(testPool, nil)

	groupRef := insertSession(t, ctx, 2, "10001", "20002")
	privateRef := insertSession(t, ctx, 1, "10001", "")

	info, err := repo.ResolveSession(ctx, groupRef)
	require.NoError(t, err)
	assert.Equal(t, groupRef, info.SessionRef)
	assert.Equal(t, "10001", info.UserID)
	assert.Equal(t, "20002", info.GroupID)

	_, err = repo.ResolveSession(ctx, privateRef)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = repo.ResolveSession(ctx, 999999)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionRepo_ListGroups(t *testing.T) {
	ctx := setupIntegration(t)

	repo := NewSessionRepo(testPool, nil)

	insertSession(t, ctx, 2, "10001", "20002")
	insertSession(t, ctx, 2, "10002", "20002") // same group, newer session
	insertSession(t, ctx, 2, "10001", "30003")
	insertSession(t, ctx, 1, "10001", "") // private chat, excluded

	groups, err := repo.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	byGroup := make(map[string]domain.Group, len(groups))
	for _, g := range groups {
		byGroup[g.GroupID] = g
	}
	require.Contains(t, byGroup, "20002")
	require.Contains(t, byGroup, "30003")
	// Latest session wins for a group seen twice.
	assert.Greater(t, byGroup["20002"].SessionRef, int64(1))
}

type staticAliases map[string]string

func (a staticAliases) Alias(_ context.Context, groupID string) (string, bool) {
	alias, ok := a[groupID]
	return alias, ok
}

func TestSessionRepo_AliasesApplied(t *testing.T) {
	ctx := setupIntegration(t)

	repo := NewSessionRepo(testPool, staticAliases{"20002": "dev chat"})

	ref := insertSession(t, ctx, 2, "10001", "20002")

	info, err := repo.ResolveSession(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "dev chat", info.GroupAlias)

	groups, err := repo.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "dev chat", groups[0].Alias)
}
