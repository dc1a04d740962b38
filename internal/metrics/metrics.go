// Package metrics instruments the gateway with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the gateway's Prometheus instruments.
type Collector struct {
	completionsTotal *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewCollector registers the gateway collectors on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		completionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_completions_total",
			Help: "Completion requests by provider type, mode, and outcome.",
		}, []string{"provider_type", "mode", "status"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Tokens processed by provider type and direction.",
		}, []string{"provider_type", "direction"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_completion_duration_seconds",
			Help:    "Wall-clock duration of completion requests.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider_type", "mode"}),
	}
}

// ObserveCompletion records the outcome of one completion request.
func (c *Collector) ObserveCompletion(providerType, mode, status string, tokensIn, tokensOut int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.completionsTotal.WithLabelValues(providerType, mode, status).Inc()
	c.tokensTotal.WithLabelValues(providerType, "input").Add(float64(tokensIn))
	c.tokensTotal.WithLabelValues(providerType, "output").Add(float64(tokensOut))
	c.requestDuration.WithLabelValues(providerType, mode).Observe(elapsed.Seconds())
}
