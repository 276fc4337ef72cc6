package usage

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Records *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_usage_records_total",
				Help: "Usage records by outcome (flushed, failed, dropped).",
			},
			[]string{"result"},
		),
	}
	registry.MustRegister(m.Records)
	return m
}

func (m *Metrics) record(result string, n int) {
	if m != nil {
		m.Records.WithLabelValues(result).Add(float64(n))
	}
}
