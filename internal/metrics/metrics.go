package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatherly"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// AppInfo exposes version information as labels, always set to 1
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit"},
)

// Domain metrics
var (
	// UsersRegistered counts successful registrations by provider
	UsersRegistered = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_registered_total",
			Help:      "Total number of registered users",
		},
		[]string{"provider"},
	)

	// ConnectionCodesIssued counts issued connection codes
	ConnectionCodesIssued = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_codes_issued_total",
			Help:      "Total number of connection codes issued",
		},
	)

	// ConnectionCodesRedeemed counts redeem attempts by outcome
	ConnectionCodesRedeemed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_codes_redeemed_total",
			Help:      "Total number of connection code redeem attempts",
		},
		[]string{"outcome"},
	)

	// EventsCreated counts created events, copies included
	EventsCreated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_created_total",
			Help:      "Total number of events created",
		},
		[]string{"kind"},
	)

	// FeedDuration records the latency of assembling the upcoming feed
	FeedDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_duration_seconds",
			Help:      "Upcoming feed assembly duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)
