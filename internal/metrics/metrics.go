// Package metrics defines the Prometheus instruments for the relay pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Change-feed listener metrics
var (
	FeedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_events_total",
			Help: "Raw change events received from the database feed",
		},
	)

	FeedDecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_decode_failures_total",
			Help: "Feed payloads dropped because decoding failed",
		},
	)

	FeedDroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_dropped_events_total",
			Help: "Events dropped before fan-out, by reason",
		},
		[]string{"reason"},
	)

	FeedReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Reconnect attempts to the database notification channel",
		},
	)

	FeedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_connected",
			Help: "Whether the feed subscription is live (1) or down (0)",
		},
	)
)

// Enrichment cache metrics
var (
	EnrichCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrich_cache_hits_total",
			Help: "Session lookups served from the enrichment cache",
		},
	)

	EnrichCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrich_cache_misses_total",
			Help: "Session lookups that fell through to the database",
		},
	)

	EnrichNegativeHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrich_negative_hits_total",
			Help: "Lookups answered by a cached unknown-session result",
		},
	)

	EnrichLookupsCollapsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enrich_lookups_collapsed_total",
			Help: "Concurrent lookups for the same session collapsed in flight",
		},
	)

	LookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookup_failures_total",
			Help: "Session lookup failures by class (transient/permanent)",
		},
		[]string{"class"},
	)
)

// Broadcaster / subscriber metrics
var (
	ActiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcaster_active_subscribers",
			Help: "Currently registered viewer connections",
		},
	)

	EventsBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_events_total",
			Help: "Display events handed to the broadcaster",
		},
	)

	SubscriberQueueDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriber_queue_drops_total",
			Help: "Oldest queued items dropped because a subscriber queue was full",
		},
	)

	SubscriberSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subscriber_send_duration_seconds",
			Help:    "WebSocket write duration per outbound message",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	SubscriberPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriber_ping_failures_total",
			Help: "Keepalive pings that failed to write",
		},
	)

	BroadcasterPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_panics_total",
			Help: "Broadcaster panic recoveries",
		},
	)
)

// HTTP / transport metrics
var (
	WebsocketRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_rejections_total",
			Help: "Rejected websocket connection attempts, by reason",
		},
		[]string{"reason"},
	)

	HistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "history_window_size",
			Help: "Display events currently held in the recent-window cache",
		},
	)
)
