package service

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	AuthAttempts        *prometheus.CounterVec
	KeyVerifications    *prometheus.CounterVec
	KeyVerifyLatency    prometheus.Histogram
	KeyVerifyCandidates prometheus.Histogram
	KeyOperations       *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_auth_attempts_total",
				Help: "Tenant authentication attempts by flow and result.",
			},
			[]string{"flow", "result"},
		),
		KeyVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_api_key_verifications_total",
				Help: "API key verifications by result.",
			},
			[]string{"result"},
		),
		KeyVerifyLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "platform_api_key_verify_duration_seconds",
				Help:    "API key verification latency in seconds.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		KeyVerifyCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "platform_api_key_verify_candidates",
				Help:    "Stored keys sharing the presented prefix.",
				Buckets: []float64{0, 1, 2, 3, 5, 8},
			},
		),
		KeyOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_api_key_operations_total",
				Help: "API key lifecycle operations by kind and result.",
			},
			[]string{"operation", "result"},
		),
	}

	registry.MustRegister(
		m.AuthAttempts,
		m.KeyVerifications,
		m.KeyVerifyLatency,
		m.KeyVerifyCandidates,
		m.KeyOperations,
	)
	return m
}

func (m *Metrics) auth(flow, result string) {
	if m != nil {
		m.AuthAttempts.WithLabelValues(flow, result).Inc()
	}
}

func (m *Metrics) keyOp(operation, result string) {
	if m != nil {
		m.KeyOperations.WithLabelValues(operation, result).Inc()
	}
}
