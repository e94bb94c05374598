package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_connected_clients",
			Help: "Websocket connections currently registered with the hub",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_active_rooms",
			Help: "Rooms with at least one participant",
		},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_frames_received_total",
			Help: "Inbound frames by type",
		},
		[]string{"type"},
	)

	FramesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_frames_delivered_total",
			Help: "Outbound frames queued for delivery by type",
		},
		[]string{"type"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_frames_dropped_total",
			Help: "Frames that were not delivered",
		},
		[]string{"reason"}, // "malformed", "routing_miss", "slow_consumer"
	)

	// Event mirror metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_events_published_total",
			Help: "Room events mirrored to the event bus",
		},
		[]string{"result"}, // "ok", "error", "overflow"
	)
)

// Drop reasons.
const (
	DropMalformed    = "malformed"
	DropRoutingMiss  = "routing_miss"
	DropSlowConsumer = "slow_consumer"
)
