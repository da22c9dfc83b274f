// Package metrics exposes the relay's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatseguro_connections_total",
		Help: "WebSocket connections accepted since start.",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatseguro_connected_clients",
		Help: "Currently connected WebSocket clients.",
	})

	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatseguro_messages_relayed_total",
		Help: "Messages appended to history and broadcast.",
	})

	ReactionsToggled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatseguro_reactions_toggled_total",
		Help: "Reaction toggles applied and broadcast.",
	})

	AuthDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatseguro_auth_denials_total",
		Help: "Rejected auth and join attempts.",
	})

	StoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatseguro_store_errors_total",
		Help: "Durable store operations that failed.",
	})

	UploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatseguro_uploads_total",
		Help: "Image uploads accepted.",
	})
)
