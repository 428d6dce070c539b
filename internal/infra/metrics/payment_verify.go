package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		verificationsTotal,
	)
}

var verificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Verification polls by provider and observed status.",
	},
	[]string{"provider", "status"},
)

func IncVerification(provider, status string) {
	verificationsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}
