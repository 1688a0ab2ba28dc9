// Package metrics exposes Prometheus instrumentation for sockets, datagrams
// and search sessions. Collectors register with the default registry on
// import; expose them with promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for the "role" label.
const (
	RoleSearch   = "search"
	RoleNotify   = "notify"
	RoleAnnounce = "announce"
)

// Label values for the "reason" label of DatagramsDroppedTotal.
const (
	ReasonParse        = "parse"
	ReasonWrongKind    = "wrong_kind"
	ReasonForeignIface = "foreign_interface"
	ReasonFiltered     = "filtered"
	ReasonDuplicate    = "duplicate"
)

// =============================================================================
// Socket Metrics
// =============================================================================

var (
	// SocketFailuresTotal counts per-interface socket failures
	SocketFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssdp_socket_failures_total",
			Help: "Total number of per-interface socket failures",
		},
		[]string{"role", "op"}, // op: "bind", "join", "send", "receive"
	)

	// ActiveSockets tracks currently open interface sockets
	ActiveSockets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ssdp_active_sockets",
			Help: "Current number of open interface sockets",
		},
		[]string{"role"},
	)
)

// =============================================================================
// Datagram Metrics
// =============================================================================

var (
	// DatagramsReceivedTotal counts datagrams read from any socket
	DatagramsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssdp_datagrams_received_total",
			Help: "Total number of datagrams received",
		},
		[]string{"role"},
	)

	// DatagramsDroppedTotal counts datagrams discarded as network noise
	DatagramsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssdp_datagrams_dropped_total",
			Help: "Total number of received datagrams dropped before delivery",
		},
		[]string{"role", "reason"},
	)

	// DatagramsSentTotal counts datagrams multicast or unicast
	DatagramsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssdp_datagrams_sent_total",
			Help: "Total number of datagrams sent",
		},
		[]string{"role"},
	)
)

// =============================================================================
// Search Metrics
// =============================================================================

var (
	// SearchesTotal counts search sessions started
	SearchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ssdp_searches_total",
			Help: "Total number of search sessions started",
		},
	)

	// SearchResponsesTotal counts responses delivered to callers
	SearchResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ssdp_search_responses_total",
			Help: "Total number of search responses delivered",
		},
	)

	// SearchDurationSeconds measures wall time from send to close
	SearchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ssdp_search_duration_seconds",
			Help:    "Duration of search sessions from send to close",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30, 60, 125},
		},
	)

	// NotificationsTotal counts NOTIFY messages delivered, by NTS
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssdp_notifications_total",
			Help: "Total number of NOTIFY messages delivered",
		},
		[]string{"nts"},
	)
)
