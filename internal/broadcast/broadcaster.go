package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	commandBuffer  = 256
)

// subscriber is one registered viewer connection with its filter and queue.
type subscriber struct {
	id     uuid.UUID
	writer *clientWriter
	filter domain.Filter
}

// registryCmd is the command interface for the Broadcaster actor.
type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type registerCmd struct {
	baseRegistryCmd
	connection   *websocket.Conn
	replyChannel chan uuid.UUID
}

type unregisterCmd struct {
	baseRegistryCmd
	id uuid.UUID
}

type updateFilterCmd struct {
	baseRegistryCmd
	id           uuid.UUID
	filter       domain.Filter
	errorChannel chan error
}

type broadcastCmd struct {
	baseRegistryCmd
	event domain.DisplayEvent
}

type sendCmd struct {
	baseRegistryCmd
	id           uuid.UUID
	payload      []byte
	errorChannel chan error
}

type announceCmd struct {
	baseRegistryCmd
	payload []byte
}

type filterQueryCmd struct {
	baseRegistryCmd
	id           uuid.UUID
	replyChannel chan filterReply
}

type filterReply struct {
	filter domain.Filter
	ok     bool
}

type countCmd struct {
	baseRegistryCmd
	replyChannel chan int
}

type stopCmd struct {
	baseRegistryCmd
}

// Broadcaster is the subscriber registry and fan-out dispatcher. A single
// goroutine owns the registry map, so register/unregister/filter updates
// and broadcasts are serialized without shared locks; per-subscriber
// delivery order matches broadcast order.
type Broadcaster struct {
	cmdCh       chan registryCmd
	clock       clockwork.Clock
	subscribers map[uuid.UUID]*subscriber
	queueSize   int
	done        chan struct{}
}

// NewBroadcaster starts the registry actor. queueSize bounds each
// subscriber's outbound queue.
func NewBroadcaster(clock clockwork.Clock, queueSize int) *Broadcaster {
	b := &Broadcaster{
		cmdCh:       make(chan registryCmd, commandBuffer),
		clock:       clock,
		subscribers: make(map[uuid.UUID]*subscriber),
		queueSize:   queueSize,
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

// Register adds a viewer connection and returns its subscriber handle.
// New subscribers start with filtering disabled (receive everything).
func (b *Broadcaster) Register(conn *websocket.Conn) (uuid.UUID, error) {
	replyCh := make(chan uuid.UUID, 1)
	b.cmdCh <- registerCmd{connection: conn, replyChannel: replyCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case id := <-replyCh:
		return id, nil
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register timed out after %v", commandTimeout)
	}
}

// Unregister removes a subscriber, stopping its writer and releasing its
// queue. Safe to call for an already-removed handle.
func (b *Broadcaster) Unregister(id uuid.UUID) {
	b.cmdCh <- unregisterCmd{id: id}
}

// UpdateFilter replaces a subscriber's filter. The change applies to events
// broadcast strictly after this call completes. A transition from an
// admitting filter to disabled or fail-closed pushes a resync directive so
// the viewer clears items that may no longer be admissible.
func (b *Broadcaster) UpdateFilter(id uuid.UUID, enabled bool, groupIDs []string) error {
	errCh := make(chan error, 1)
	b.cmdCh <- updateFilterCmd{id: id, filter: domain.NewFilter(enabled, groupIDs), errorChannel: errCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("filter update timed out after %v", commandTimeout)
	}
}

// Filter returns a subscriber's current filter, for replay requests.
func (b *Broadcaster) Filter(id uuid.UUID) (domain.Filter, error) {
	replyCh := make(chan filterReply, 1)
	b.cmdCh <- filterQueryCmd{id: id, replyChannel: replyCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		if !reply.ok {
			return domain.Filter{}, domain.ErrSubscriberNotFound
		}
		return reply.filter, nil
	case <-timer.Chan():
		return domain.Filter{}, fmt.Errorf("filter query timed out after %v", commandTimeout)
	}
}

// Broadcast fans ev out to every subscriber whose filter admits its group.
// Never blocks on a slow consumer: a full subscriber queue drops that
// subscriber's oldest queued item.
func (b *Broadcaster) Broadcast(ev domain.DisplayEvent) {
	b.cmdCh <- broadcastCmd{event: ev}
}

// Send marshals v and queues it for a single subscriber, bypassing its
// filter. Used for command responses and replay snapshots.
func (b *Broadcaster) Send(id uuid.UUID, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	errCh := make(chan error, 1)
	b.cmdCh <- sendCmd{id: id, payload: payload, errorChannel: errCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("send timed out after %v", commandTimeout)
	}
}

// Announce marshals v and queues it for every subscriber regardless of
// filters: status, stats, and setting updates.
func (b *Broadcaster) Announce(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal announcement", "error", err)
		return
	}
	b.cmdCh <- announceCmd{payload: payload}
}

// Count returns the number of registered subscribers, or -1 on timeout.
func (b *Broadcaster) Count() int {
	replyCh := make(chan int, 1)
	b.cmdCh <- countCmd{replyChannel: replyCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-timer.Chan():
		slog.Warn("subscriber count timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the registry down, closing all viewer connections. Blocks
// until the actor goroutine exits or the stop timeout elapses.
func (b *Broadcaster) Stop() {
	b.cmdCh <- stopCmd{}

	timer := b.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-b.done:
		slog.Info("broadcaster stopped")
	case <-timer.Chan():
		slog.Warn("broadcaster stop timed out", "timeout", stopTimeout)
	}
}

func (b *Broadcaster) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("broadcaster panic recovered", "panic", r)
			metrics.BroadcasterPanics.Inc()
			b.closeAll("internal error")
			close(b.done)
		}
	}()

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			b.handleRegister(c)
		case unregisterCmd:
			b.handleUnregister(c.id)
		case updateFilterCmd:
			b.handleUpdateFilter(c)
		case broadcastCmd:
			b.handleBroadcast(c.event)
		case sendCmd:
			b.handleSend(c)
		case announceCmd:
			for _, sub := range b.subscribers {
				sub.writer.enqueue(c.payload)
			}
		case filterQueryCmd:
			sub, ok := b.subscribers[c.id]
			if ok {
				c.replyChannel <- filterReply{filter: sub.filter, ok: true}
			} else {
				c.replyChannel <- filterReply{}
			}
		case countCmd:
			c.replyChannel <- len(b.subscribers)
		case stopCmd:
			b.closeAll("server shutting down")
			close(b.done)
			return
		default:
			slog.Warn("broadcaster received unknown command", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	sub := &subscriber{
		id:     uuid.New(),
		writer: newClientWriter(c.connection, b.clock, b.queueSize),
		filter: domain.NewFilter(false, nil),
	}
	b.subscribers[sub.id] = sub

	metrics.ActiveSubscribers.Set(float64(len(b.subscribers)))
	slog.Debug("subscriber registered", "subscriber_id", sub.id.String(), "total", len(b.subscribers))
	c.replyChannel <- sub.id
}

func (b *Broadcaster) handleUnregister(id uuid.UUID) {
	sub, ok := b.subscribers[id]
	if !ok {
		return
	}

	sub.writer.stop()
	delete(b.subscribers, id)

	metrics.ActiveSubscribers.Set(float64(len(b.subscribers)))
	slog.Debug("subscriber unregistered", "subscriber_id", id.String(), "remaining", len(b.subscribers))
}

func (b *Broadcaster) handleUpdateFilter(c updateFilterCmd) {
	sub, ok := b.subscribers[c.id]
	if !ok {
		c.errorChannel <- domain.ErrSubscriberNotFound
		return
	}

	previous := sub.filter
	sub.filter = c.filter

	// Leaving an admitting filter means items already on screen may no
	// longer be admissible; tell the viewer to clear and resync.
	wasAdmitting := previous.Enabled && len(previous.AllowedGroups) > 0
	if wasAdmitting && (!c.filter.Enabled || c.filter.FailClosed()) {
		if payload, err := json.Marshal(domain.ResyncMessage{
			Type:   domain.MessageTypeResync,
			Reason: "filter changed",
		}); err == nil {
			sub.writer.enqueue(payload)
		}
	}

	slog.Info("subscriber filter updated",
		"subscriber_id", c.id.String(),
		"enabled", c.filter.Enabled,
		"groups", len(c.filter.AllowedGroups),
	)
	c.errorChannel <- nil
}

func (b *Broadcaster) handleBroadcast(ev domain.DisplayEvent) {
	metrics.EventsBroadcast.Inc()

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal display event", "event_id", ev.EventID, "error", err)
		return
	}

	for _, sub := range b.subscribers {
		if !sub.filter.Admits(ev.GroupID) {
			continue
		}
		sub.writer.enqueue(payload)
	}
}

func (b *Broadcaster) handleSend(c sendCmd) {
	sub, ok := b.subscribers[c.id]
	if !ok {
		c.errorChannel <- domain.ErrSubscriberNotFound
		return
	}
	sub.writer.enqueue(c.payload)
	c.errorChannel <- nil
}

func (b *Broadcaster) closeAll(reason string) {
	slog.Info("closing all subscribers", "count", len(b.subscribers), "reason", reason)
	for id, sub := range b.subscribers {
		sub.writer.stopGraceful(reason)
		delete(b.subscribers, id)
	}
	metrics.ActiveSubscribers.Set(0)
}
