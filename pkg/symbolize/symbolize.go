// Package symbolize fills in function names of pprof profiles recorded from
// traces, using the symbol provider the registry hands out for each trace.
package symbolize

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/pprof/profile"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/tracesym/pkg/symbols"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Resolver returns the symbol provider for a trace.
type Resolver interface {
	Resolve(t *symbols.Trace) symbols.Provider
}

type Config struct {
	MaxConcurrency int `yaml:"max_concurrency" category:"advanced"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.IntVar(&cfg.MaxConcurrency, "symbolize.max-concurrency", 4, "Maximum number of profiles symbolized concurrently.")
}

func (cfg *Config) Validate() error {
	if cfg.MaxConcurrency < 1 {
		return fmt.Errorf("invalid max-concurrency value, must be positive")
	}
	return nil
}

// Stats counts the locations touched while symbolizing a profile.
type Stats struct {
	Symbolized int
	Unresolved int
}

// Job is a profile recorded from a trace.
type Job struct {
	Trace   *symbols.Trace
	Profile *profile.Profile
}

type Symbolizer struct {
	logger   log.Logger
	resolver Resolver
	metrics  *metrics
	cfg      Config
}

func New(logger log.Logger, cfg Config, resolver Resolver, reg prometheus.Registerer) (*Symbolizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Symbolizer{
		logger:   logger,
		resolver: resolver,
		metrics:  newMetrics(reg),
		cfg:      cfg,
	}, nil
}

// SymbolizeAll symbolizes the profiles of all jobs, at most
// Config.MaxConcurrency at a time. Stats are returned in job order.
func (s *Symbolizer) SymbolizeAll(ctx context.Context, jobs []Job) ([]Stats, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	stats := make([]Stats, len(jobs))
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := s.Symbolize(job.Trace, job.Profile)
			if err != nil {
				return fmt.Errorf("symbolize profile of trace %s: %w", job.Trace, err)
			}
			stats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Symbolize adds lines to every location of p that has none and whose
// mapping is not symbolized yet. Addresses the provider cannot resolve get a
// "<binary>!0x<addr>" function.
func (s *Symbolizer) Symbolize(t *symbols.Trace, p *profile.Profile) (Stats, error) {
	start := time.Now()
	status := statusSuccess
	defer func() {
		s.metrics.profileSymbolization.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	provider := s.resolver.Resolve(t)
	fb := newFunctionBuilder(p)

	symbolized := make(map[*profile.Mapping]bool, len(p.Mapping))
	for _, m := range p.Mapping {
		symbolized[m] = m.HasFunctions
	}

	var st Stats
	for _, loc := range p.Location {
		if len(loc.Line) > 0 {
			continue
		}
		if loc.Mapping != nil && symbolized[loc.Mapping] {
			continue
		}
		frames := provider.Resolve(loc.Address)
		if len(frames) == 0 {
			frames = []symbols.Frame{{Function: fallbackName(loc)}}
			st.Unresolved++
		} else {
			st.Symbolized++
		}
		loc.Line = make([]profile.Line, 0, len(frames))
		for _, fr := range frames {
			loc.Line = append(loc.Line, profile.Line{
				Function: fb.function(fr),
				Line:     int64(fr.Line),
			})
		}
		if loc.Mapping != nil {
			loc.Mapping.HasFunctions = true
		}
	}

	s.metrics.locations.WithLabelValues("symbolized").Add(float64(st.Symbolized))
	s.metrics.locations.WithLabelValues("unresolved").Add(float64(st.Unresolved))

	if err := p.CheckValid(); err != nil {
		status = statusError
		return st, fmt.Errorf("invalid profile after symbolization: %w", err)
	}
	level.Debug(s.logger).Log("msg", "symbolized profile", "trace", t, "provider", provider.Name(), "symbolized", st.Symbolized, "unresolved", st.Unresolved)
	return st, nil
}

func fallbackName(loc *profile.Location) string {
	prefix := "unknown"
	if loc.Mapping != nil && loc.Mapping.File != "" {
		prefix = filepath.Base(loc.Mapping.File)
	}
	return fmt.Sprintf("%s!%s", prefix, symbols.FormatAddress(loc.Address))
}

type funcKey struct {
	name, file string
}

// functionBuilder deduplicates functions by name and file name, reusing the
// functions already present in the profile.
type functionBuilder struct {
	p      *profile.Profile
	funcs  map[funcKey]*profile.Function
	nextID uint64
}

func newFunctionBuilder(p *profile.Profile) *functionBuilder {
	b := &functionBuilder{p: p, funcs: make(map[funcKey]*profile.Function, len(p.Function))}
	for _, fn := range p.Function {
		b.funcs[funcKey{fn.Name, fn.Filename}] = fn
		if fn.ID > b.nextID {
			b.nextID = fn.ID
		}
	}
	return b
}

func (b *functionBuilder) function(fr symbols.Frame) *profile.Function {
	key := funcKey{fr.Function, fr.File}
	if fn, ok := b.funcs[key]; ok {
		if fr.Line > 0 && (fn.StartLine == 0 || int64(fr.Line) < fn.StartLine) {
			fn.StartLine = int64(fr.Line)
		}
		return fn
	}
	b.nextID++
	fn := &profile.Function{
		ID:         b.nextID,
		Name:       fr.Function,
		SystemName: fr.Function,
		Filename:   fr.File,
		StartLine:  int64(fr.Line),
	}
	b.p.Function = append(b.p.Function, fn)
	b.funcs[key] = fn
	return fn
}
