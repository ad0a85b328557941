package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		workflowTransitionsTotal,
		workflowsActive,
		statusChecksTotal,
		rateLimitBlocksTotal,
		subscriptionUpgradesTotal,
		subscriptionsExpiredTotal,
	)
}

var (
	workflowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upgrade_workflow_transitions_total",
			Help: "Upgrade workflow state transitions.",
		},
		[]string{"from", "to"},
	)

	workflowsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "upgrade_workflows_active",
			Help: "Upgrade workflows currently held in memory.",
		},
	)

	// result: success|failed|pending|api_error
	statusChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upgrade_status_checks_total",
			Help: "Payment status checks issued by the upgrade workflow.",
		},
		[]string{"result"},
	)

	rateLimitBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_blocks_total",
			Help: "Requests rejected by a rate limiter.",
		},
		[]string{"scope"},
	)

	subscriptionUpgradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_upgrades_total",
			Help: "Completed upgrades by resulting tier.",
		},
		[]string{"tier"},
	)

	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of premium accounts downgraded by the expiry worker.",
		},
	)
)

func IncWorkflowTransition(from, to string) {
	workflowTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func SetWorkflowsActive(n int) {
	workflowsActive.Set(float64(n))
}

func IncStatusCheck(result string) {
	statusChecksTotal.WithLabelValues(norm(result)).Inc()
}

func IncRateLimitBlock(scope string) {
	rateLimitBlocksTotal.WithLabelValues(norm(scope)).Inc()
}

func IncSubscriptionUpgrade(tier string) {
	subscriptionUpgradesTotal.WithLabelValues(norm(tier)).Inc()
}

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}
