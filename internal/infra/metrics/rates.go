package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		rateLookupsTotal,
		oracleFetchesTotal,
	)
}

var (
	rateLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_rate_lookups_total",
			Help: "Conversion lookups by pair and outcome (hit/miss/stale/unavailable).",
		},
		[]string{"pair", "outcome"},
	)

	oracleFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_oracle_fetches_total",
			Help: "Price-oracle fetches by pair and outcome.",
		},
		[]string{"pair", "outcome"},
	)
)

func IncRateLookup(pair, outcome string) {
	rateLookupsTotal.WithLabelValues(norm(pair), norm(outcome)).Inc()
}

func IncOracleFetch(pair, outcome string) {
	oracleFetchesTotal.WithLabelValues(norm(pair), norm(outcome)).Inc()
}
