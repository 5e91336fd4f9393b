package detect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	heartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replicated_counter",
		Subsystem: "lfd",
		Name:      "heartbeats_total",
		Help:      "Heartbeats answered by the watched replica.",
	}, []string{"lfd"})

	gfdMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "replicated_counter",
		Subsystem: "gfd",
		Name:      "members",
		Help:      "Members currently reported up by local fault detectors.",
	}, []string{"gfd"})
)
