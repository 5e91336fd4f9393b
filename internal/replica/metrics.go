package replica

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replicated_counter",
		Subsystem: "server",
		Name:      "requests_applied_total",
		Help:      "Client requests applied to the replicated state.",
	}, []string{"server"})

	requestsBuffered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replicated_counter",
		Subsystem: "server",
		Name:      "requests_buffered_total",
		Help:      "Client requests buffered in the pending log.",
	}, []string{"server"})

	checkpointsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replicated_counter",
		Subsystem: "server",
		Name:      "checkpoints_sent_total",
		Help:      "Checkpoints acknowledged by a backup.",
	}, []string{"server"})

	checkpointsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replicated_counter",
		Subsystem: "server",
		Name:      "checkpoints_received_total",
		Help:      "Checkpoints received from a primary.",
	}, []string{"server"})

	electionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replicated_counter",
		Subsystem: "server",
		Name:      "elections_total",
		Help:      "Primary elections run by this replica.",
	}, []string{"server"})
)
