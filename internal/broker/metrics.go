package broker

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metricd",
			Subsystem: "broker",
			Name:      "events_ingested_total",
			Help:      "Total metric events accepted per experiment",
		},
		[]string{"experiment"},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "metricd",
			Subsystem: "broker",
			Name:      "cache_evictions_total",
			Help:      "Events evicted from bounded experiment caches",
		},
	)

	subscribersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "metricd",
			Subsystem: "broker",
			Name:      "subscribers",
			Help:      "Currently connected viewer subscriptions",
		},
	)

	fanoutFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "metricd",
			Subsystem: "broker",
			Name:      "fanout_failures_total",
			Help:      "Subscriber sends that failed and caused pruning",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsIngestedTotal, cacheEvictionsTotal, subscribersGauge, fanoutFailuresTotal)
}
