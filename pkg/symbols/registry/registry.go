// Package registry keeps the symbol provider factories known to a process and
// hands out one provider per trace.
//
// Factories are registered with a priority, either explicitly through
// Register or declaratively through Load. The first lookup seals the
// registry: registrations are sorted by descending priority, keeping
// registration order for equal priorities, and no further registrations are
// accepted. Resolve then tries the factories in that order and caches the
// first provider produced for a trace.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/tracesym/pkg/symbols"
)

const originAPI = "api"

var (
	ErrSealed         = errors.New("registry is sealed")
	ErrInvalidFactory = errors.New("invalid factory registration")
)

// Registration is a factory together with the priority it is tried with.
type Registration struct {
	Name     string
	Factory  symbols.Factory
	Priority int
	// Origin tells where the registration came from: "api" for Register,
	// otherwise the source file and declaration key.
	Origin string
}

type Registry struct {
	logger  log.Logger
	metrics *metrics

	// mu guards the cache and the registrations until sealed. It is held for
	// the whole factory trial loop in Resolve, so a trace never gets two
	// providers.
	mu            sync.Mutex
	registrations []Registration
	sealed        bool
	sealOnce      sync.Once
	cache         *providerCache
}

func New(logger log.Logger, cfg Config, reg prometheus.Registerer) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := newMetrics(reg)
	cache, err := newProviderCache(logger, cfg.CacheSize, m)
	if err != nil {
		return nil, fmt.Errorf("create provider cache: %w", err)
	}
	return &Registry{
		logger:  logger,
		metrics: m,
		cache:   cache,
	}, nil
}

// Register adds a factory tried with the given priority. Higher priorities
// are tried first.
func (r *Registry) Register(name string, f symbols.Factory, priority int) error {
	return r.register(Registration{Name: name, Factory: f, Priority: priority, Origin: originAPI})
}

func (r *Registry) register(reg Registration) error {
	if reg.Name == "" || reg.Factory == nil {
		return fmt.Errorf("%w: name %q", ErrInvalidFactory, reg.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %s: %w", reg.Name, ErrSealed)
	}
	r.registrations = append(r.registrations, reg)
	r.metrics.registrations.Set(float64(len(r.registrations)))
	level.Debug(r.logger).Log("msg", "registered symbol provider factory", "name", reg.Name, "priority", reg.Priority, "origin", reg.Origin)
	return nil
}

// Seal sorts the registrations and stops accepting new ones. It is called
// implicitly by the first Resolve.
func (r *Registry) Seal() {
	r.sealOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		sort.SliceStable(r.registrations, func(i, j int) bool {
			return r.registrations[i].Priority > r.registrations[j].Priority
		})
		r.sealed = true
		level.Debug(r.logger).Log("msg", "symbol provider registry sealed", "factories", len(r.registrations))
	})
}

// Registrations returns a copy of the registrations. Once the registry is
// sealed they are in trial order.
func (r *Registry) Registrations() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Registration, len(r.registrations))
	copy(res, r.registrations)
	return res
}

// Resolve returns the provider for the trace. It returns the cached provider
// if there is one, otherwise the first provider built by a factory, in
// priority order. If no factory applies, a new default provider is returned;
// it is not cached. Resolve never returns nil.
func (r *Registry) Resolve(t *symbols.Trace) symbols.Provider {
	if t == nil {
		r.metrics.resolutions.WithLabelValues(outcomeDefault).Inc()
		return symbols.NewDefaultProvider(nil)
	}
	r.Seal()

	if p := r.lookupOrCreate(t); p != nil {
		return p
	}

	r.metrics.resolutions.WithLabelValues(outcomeDefault).Inc()
	return symbols.NewDefaultProvider(t)
}

func (r *Registry) lookupOrCreate(t *symbols.Trace) symbols.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache.get(t.ID); ok {
		r.metrics.resolutions.WithLabelValues(outcomeCached).Inc()
		return p
	}

	for _, reg := range r.registrations {
		p, err := reg.Factory.CreateProvider(t)
		if err != nil {
			r.metrics.factoryErrors.WithLabelValues(reg.Name).Inc()
			level.Warn(r.logger).Log("msg", "symbol provider factory failed", "factory", reg.Name, "trace", t.ID, "err", err)
			continue
		}
		if p == nil {
			continue
		}
		r.cache.add(t.ID, p)
		r.metrics.resolutions.WithLabelValues(outcomeCreated).Inc()
		level.Debug(r.logger).Log("msg", "created symbol provider", "factory", reg.Name, "provider", p.Name(), "trace", t.ID)
		return p
	}
	return nil
}

// Forget drops and closes the provider cached for the trace. It should be
// called when the trace is closed.
func (r *Registry) Forget(t *symbols.Trace) bool {
	if t == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.remove(t.ID)
}

// Cached reports the number of cached providers.
func (r *Registry) Cached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.size()
}

// Close closes every cached provider. The registry stays usable.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.purge()
	return nil
}
