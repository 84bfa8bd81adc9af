package symbolize

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	profileSymbolization *prometheus.HistogramVec
	locations            *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		profileSymbolization: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracesym_profile_symbolization_duration_seconds",
			Help:    "Time spent symbolizing a profile.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"status"}),
		locations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracesym_symbolized_locations_total",
			Help: "Total number of profile locations symbolized, by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.profileSymbolization,
			m.locations,
		)
	}

	return m
}
