package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(creditsConsumedTotal, creditRejectionsTotal) }

var (
	creditsConsumedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_consumed_total",
			Help: "Credits deducted from free-tier accounts.",
		},
	)

	creditRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_rejections_total",
			Help: "Actions rejected because the account had too few credits.",
		},
	)
)

func AddCreditsConsumed(n int64) {
	creditsConsumedTotal.Add(float64(n))
}

func IncCreditRejection() {
	creditRejectionsTotal.Inc()
}
