package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		gatewayCallDuration,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by status (pending/successful/failed) and error code.",
		},
		[]string{"status", "code"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of successful payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	// op: initiate|status
	gatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_duration_seconds",
			Help:    "Latency of payment gateway calls by gateway, operation and result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
		},
		[]string{"gateway", "op", "success"},
	)
)

func IncPayment(status, code string) {
	if code == "" {
		code = "none"
	}
	paymentsTotal.WithLabelValues(norm(status), norm(code)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func ObserveGatewayCall(gateway, op string, success bool, d time.Duration) {
	gatewayCallDuration.WithLabelValues(norm(gateway), norm(op), boolLabel(success)).Observe(d.Seconds())
}
