// Package providers wires the built-in symbol provider factories into a
// registry.
package providers

import (
	"github.com/go-kit/log"
	"github.com/spf13/afero"

	"github.com/grafana/tracesym/pkg/symbols"
	"github.com/grafana/tracesym/pkg/symbols/providers/elf"
	"github.com/grafana/tracesym/pkg/symbols/providers/kallsyms"
	"github.com/grafana/tracesym/pkg/symbols/providers/mapping"
	"github.com/grafana/tracesym/pkg/symbols/registry"
)

// Default priorities used when no source file is configured. Explicit
// mapping files override symbols found in the binary.
var DefaultPriorities = map[string]int{
	mapping.Name:  20,
	elf.Name:      10,
	kallsyms.Name: 0,
}

// Catalog returns the constructors of the built-in factories, keyed by the
// class names used in source files.
func Catalog() registry.Catalog {
	return registry.Catalog{
		mapping.Name: func(logger log.Logger, fs afero.Fs) (symbols.Factory, error) {
			return mapping.NewFactory(logger, fs), nil
		},
		kallsyms.Name: func(logger log.Logger, fs afero.Fs) (symbols.Factory, error) {
			return kallsyms.NewFactory(logger, fs), nil
		},
		elf.Name: func(logger log.Logger, fs afero.Fs) (symbols.Factory, error) {
			return elf.NewFactory(logger, fs), nil
		},
	}
}

// RegisterDefaults registers every built-in factory with its default
// priority.
func RegisterDefaults(r *registry.Registry, logger log.Logger, fs afero.Fs) error {
	for _, name := range []string{mapping.Name, elf.Name, kallsyms.Name} {
		f, err := Catalog()[name](log.With(logger, "factory", name), fs)
		if err != nil {
			return err
		}
		if err := r.Register(name, f, DefaultPriorities[name]); err != nil {
			return err
		}
	}
	return nil
}
