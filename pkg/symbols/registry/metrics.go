package registry

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeCached  = "cached"
	outcomeCreated = "created"
	outcomeDefault = "default"
)

type metrics struct {
	resolutions   *prometheus.CounterVec
	factoryErrors *prometheus.CounterVec
	loadErrors    prometheus.Counter
	evictions     prometheus.Counter
	cachedEntries prometheus.Gauge
	registrations prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracesym_registry_resolutions_total",
			Help: "Total number of symbol provider lookups by outcome (cached, created, default).",
		}, []string{"outcome"}),
		factoryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracesym_registry_factory_errors_total",
			Help: "Total number of errors returned by symbol provider factories.",
		}, []string{"factory"}),
		loadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracesym_registry_load_errors_total",
			Help: "Total number of provider declarations skipped while loading sources.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracesym_registry_cache_evictions_total",
			Help: "Total number of providers dropped from the cache.",
		}),
		cachedEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracesym_registry_cache_entries",
			Help: "Number of providers currently cached.",
		}),
		registrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracesym_registry_factories",
			Help: "Number of registered symbol provider factories.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.resolutions,
			m.factoryErrors,
			m.loadErrors,
			m.evictions,
			m.cachedEntries,
			m.registrations,
		)
	}

	return m
}
