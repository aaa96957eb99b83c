// Package feed maintains the durable subscription to the database's
// notification channel and turns raw row-insert events into display events.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/metrics"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/style"
)

// DefaultChannel is the Postgres NOTIFY channel the chat logger's trigger
// publishes on.
const DefaultChannel = "danmaku_events"

const (
	initialBackoff    = time.Second
	maxBackoff        = 30 * time.Second
	heartbeatInterval = 30 * time.Second
	pingTimeout       = 5 * time.Second

	// Consecutive credential rejections before giving up. Transient
	// failures retry forever; only this class terminates the listener.
	maxFatalAttempts = 3

	fallbackColor = "#8E8E93"
)

// State is the listener's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateListening
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	default:
		return "unknown"
	}
}

// Resolver is the enrichment lookup the listener consults per event.
type Resolver interface {
	Resolve(ctx context.Context, sessionRef int64) (domain.SessionInfo, error)
}

// Dispatcher receives the listener's output: display events in feed-arrival
// order, plus feed-status announcements for all viewers.
type Dispatcher interface {
	Broadcast(ev domain.DisplayEvent)
	Announce(v any)
}

// Appender is the recent-window sink.
type Appender interface {
	Append(ev domain.DisplayEvent)
}

// Listener owns the feed connection. A single goroutine runs the
// Disconnected -> Connecting -> Listening state machine, so events reach
// the dispatcher strictly in arrival order.
type Listener struct {
	pool        *pgxpool.Pool
	channel     string
	resolver    Resolver
	dispatcher  Dispatcher
	window      Appender
	clock       clockwork.Clock
	state       atomic.Int32
	lastEventID int64
}

// NewListener wires a Listener; call Run to start it.
func NewListener(pool *pgxpool.Pool, channel string, resolver Resolver, dispatcher Dispatcher, window Appender, clock clockwork.Clock) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Listener{
		pool:       pool,
		channel:    channel,
		resolver:   resolver,
		dispatcher: dispatcher,
		window:     window,
		clock:      clock,
	}
}

// State returns the current connection state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
	if s == StateListening {
		metrics.FeedConnected.Set(1)
	} else {
		metrics.FeedConnected.Set(0)
	}
}

// Run blocks until ctx is cancelled or the feed fails fatally (credential
// rejection). Every other failure reconnects with capped, jittered
// exponential backoff.
func (l *Listener) Run(ctx context.Context) error {
	attempt := 0
	fatalAttempts := 0

	for {
		l.setState(StateConnecting)

		conn, err := l.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isCredentialError(err) {
				fatalAttempts++
				slog.Error("feed credentials rejected", "attempt", fatalAttempts, "error", err)
				if fatalAttempts >= maxFatalAttempts {
					return fmt.Errorf("feed connection rejected after %d attempts: %w", fatalAttempts, err)
				}
			} else {
				fatalAttempts = 0
				slog.Warn("feed connect failed", "error", err)
			}

			l.setState(StateDisconnected)
			metrics.FeedReconnects.Inc()
			attempt++
			if !l.sleep(ctx, backoffDelay(attempt)) {
				return ctx.Err()
			}
			continue
		}

		attempt = 0
		fatalAttempts = 0
		l.setState(StateListening)
		slog.Info("feed subscription established", "channel", l.channel)
		l.dispatcher.Announce(domain.StatusMessage{
			Type:          domain.MessageTypeConnection,
			Message:       "feed connected",
			FeedConnected: true,
		})

		err = l.listen(ctx, conn)
		_ = conn.Close(context.Background())

		if ctx.Err() != nil {
			l.setState(StateDisconnected)
			return ctx.Err()
		}

		l.setState(StateDisconnected)
		metrics.FeedReconnects.Inc()
		slog.Warn("feed connection lost, reconnecting", "error", err)
		l.dispatcher.Announce(domain.StatusMessage{
			Type:          domain.MessageTypeConnection,
			Message:       "feed connection lost, reconnecting",
			FeedConnected: false,
		})

		attempt++
		if !l.sleep(ctx, backoffDelay(attempt)) {
			return ctx.Err()
		}
	}
}

// connect takes a dedicated connection out of the pool and subscribes it
// to the notification channel.
func (l *Listener) connect(ctx context.Context) (*pgx.Conn, error) {
	poolConn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire feed connection: %w", err)
	}

	// The connection stays subscribed for its whole lifetime, so take it
	// out of pool rotation.
	conn := poolConn.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen on %s: %w", l.channel, err)
	}
	return conn, nil
}

// listen consumes notifications until the connection breaks or ctx ends.
// Quiet periods are bridged by heartbeat pings.
func (l *Listener) listen(ctx context.Context, conn *pgx.Conn) error {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, heartbeatInterval)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				if err := l.ping(ctx, conn); err != nil {
					return fmt.Errorf("heartbeat failed: %w", err)
				}
				continue
			}
			return err
		}

		l.handlePayload(ctx, notification.Payload)
	}
}

func (l *Listener) ping(ctx context.Context, conn *pgx.Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return conn.Ping(pingCtx)
}

// handlePayload decodes, enriches, styles, and dispatches one feed event.
// Failures here are absorbed: decode and resolution problems drop the
// event with a log line, never the connection.
func (l *Listener) handlePayload(ctx context.Context, payload string) {
	raw, err := decodePayload([]byte(payload))
	if err != nil {
		metrics.FeedDecodeFailures.Inc()
		slog.Warn("dropping undecodable feed payload", "error", err)
		return
	}

	metrics.FeedEventsTotal.Inc()

	if raw.EventID <= l.lastEventID {
		metrics.FeedDroppedEvents.WithLabelValues("duplicate").Inc()
		return
	}

	ev, ok := l.buildEvent(ctx, raw)
	if !ok {
		return
	}

	l.lastEventID = raw.EventID
	l.window.Append(ev)
	l.dispatcher.Broadcast(ev)
}

// buildEvent enriches and styles a raw event. A permanently unresolvable
// session degrades to the "unknown" placeholder group rather than
// vanishing; transient lookup failures drop the event.
func (l *Listener) buildEvent(ctx context.Context, raw domain.RawChangeEvent) (domain.DisplayEvent, bool) {
	info, err := l.resolver.Resolve(ctx, raw.SessionRef)
	switch {
	case err == nil:
	case domain.IsPermanentLookupError(err):
		metrics.LookupFailures.WithLabelValues("permanent").Inc()
		slog.Warn("session unknown, using placeholder group",
			"session_ref", raw.SessionRef, "event_id", raw.EventID)
		info = domain.SessionInfo{SessionRef: raw.SessionRef, GroupID: domain.GroupUnknown}
	default:
		metrics.LookupFailures.WithLabelValues("transient").Inc()
		metrics.FeedDroppedEvents.WithLabelValues("lookup").Inc()
		slog.Error("dropping event, session lookup failed",
			"session_ref", raw.SessionRef, "event_id", raw.EventID, "error", err)
		return domain.DisplayEvent{}, false
	}

	content, s := style.Parse(raw.PlainText)
	if content == "" {
		metrics.FeedDroppedEvents.WithLabelValues("empty").Inc()
		return domain.DisplayEvent{}, false
	}

	color := fallbackColor
	if info.UserID != "" {
		color = domain.AccountColor(info.UserID)
	}

	return domain.DisplayEvent{
		Type:         domain.MessageTypeDanmaku,
		EventID:      raw.EventID,
		GroupID:      info.GroupID,
		UserID:       info.UserID,
		AccountColor: color,
		Content:      content,
		Style:        s,
		OccurredAt:   raw.OccurredAt.UTC(),
	}, true
}

// sleep waits for d or until ctx ends; reports whether to keep going.
func (l *Listener) sleep(ctx context.Context, d time.Duration) bool {
	timer := l.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffDelay returns the capped, jittered delay before reconnect attempt n.
func backoffDelay(attempt int) time.Duration {
	d := initialBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	// +-10% jitter keeps reconnect storms from synchronizing.
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	return d + jitter
}

// isCredentialError reports whether err is an authentication failure
// (SQLSTATE class 28), the only error class that can exhaust retries.
func isCredentialError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "28"
	}
	return false
}
