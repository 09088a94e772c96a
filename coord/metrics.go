package coord

import "github.com/prometheus/client_golang/prometheus"

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bagel_queries_total",
			Help: "Queries finished, by type and status.",
		},
		[]string{"type", "status"},
	)
	queriesRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bagel_queries_running",
		Help: "Queries currently running.",
	})
	queryRounds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bagel_query_rounds",
			Help:    "Rounds needed to answer a query.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(queriesTotal, queriesRunning, queryRounds)
}
