package namespace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsRegistry carries every Prometheus collector the namespace surface
// exposes at /metrics, covering provider health, pool load, and proxy
// traffic (§11 domain stack).
type metricsRegistry struct {
	providerHealth *prometheus.GaugeVec
	poolWorkers    *prometheus.GaugeVec
	proxyDecisions *prometheus.CounterVec
}

func newMetricsRegistry(reg prometheus.Registerer) *metricsRegistry {
	return &metricsRegistry{
		providerHealth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "claude_orchestrator",
			Subsystem: "provider",
			Name:      "health",
			Help:      "Provider health as of the last /providers/<id>/health read (1=healthy, 0.5=degraded, 0=unhealthy).",
		}, []string{"provider_id"}),
		poolWorkers: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "claude_orchestrator",
			Subsystem: "pool",
			Name:      "worker_sessions",
			Help:      "Active sessions assigned to each pool worker.",
		}, []string{"worker_id"}),
		proxyDecisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "claude_orchestrator",
			Subsystem: "proxy",
			Name:      "decisions_total",
			Help:      "Allow/deny decisions made by the socket proxy allow-list.",
		}, []string{"decision"}),
	}
}

func healthGaugeValue(status string) float64 {
	switch status {
	case "healthy":
		return 1
	case "degraded":
		return 0.5
	default:
		return 0
	}
}
