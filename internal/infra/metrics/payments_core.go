package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
	)
}

var paymentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Payment lifecycle events by provider and status.",
	},
	[]string{"provider", "status"},
)

func IncPayment(provider, status string) {
	paymentsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}
