package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_connections",
		Help: "Number of currently connected realtime sessions.",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages created, by chat scope.",
	}, []string{"scope"})

	ReactionsToggled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_reactions_toggled_total",
		Help: "Reaction toggle operations applied.",
	})

	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcasts_dropped_total",
		Help: "Room broadcasts dropped because a client send buffer was full.",
	})
)
