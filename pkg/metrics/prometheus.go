package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers gate counters and facilitator latency
// histograms on the given registry. Passing nil uses the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordinals_x402",
			Name:      "gate_events_total",
			Help:      "payment gate event counters",
		},
		[]string{"type", "resource"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ordinals_x402",
			Name:      "facilitator_latency_seconds",
			Help:      "payment facilitator operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "resource"},
	)

	reg.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":     name,
		"resource": labels["resource"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"resource":  labels["resource"],
	}).Observe(d.Seconds())
}
