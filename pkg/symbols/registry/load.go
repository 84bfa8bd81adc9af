package registry

import (
	"fmt"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/grafana/tracesym/pkg/symbols"
)

const (
	// LegacySourceKey is the declaration key used by older source files.
	LegacySourceKey = "symbolProvider"
	// SourceKey is the current declaration key.
	SourceKey = "symbol_providers"

	elementProviderFactory = "providerFactory"
)

// Constructor builds a factory named by a declaration.
type Constructor func(logger log.Logger, fs afero.Fs) (symbols.Factory, error)

// Catalog maps the class names used in declarations to constructors.
type Catalog map[string]Constructor

// Declaration is a single entry of a source file.
type Declaration struct {
	Element  string `yaml:"element"`
	Class    string `yaml:"class"`
	Priority string `yaml:"priority"`
}

type sourceFile struct {
	Legacy  []Declaration `yaml:"symbolProvider"`
	Current []Declaration `yaml:"symbol_providers"`
}

// ParsePriority parses a declared priority. Empty or malformed values,
// including ones padded with whitespace, yield 0 and ok set to false.
func ParsePriority(s string) (priority int, ok bool) {
	if s == "" {
		return 0, false
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return p, true
}

// Load registers the factories declared in the given source files. Every
// file may declare factories under the legacy and the current key; legacy
// declarations are registered first. A declaration that cannot be turned
// into a factory is skipped; the returned error lists every skipped
// declaration and unreadable file, while all others stay registered.
func (r *Registry) Load(fs afero.Fs, catalog Catalog, sources []string) error {
	var errs *multierror.Error
	for _, path := range sources {
		if err := r.loadSource(fs, catalog, path); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		r.metrics.loadErrors.Add(float64(errs.Len()))
	}
	return errs.ErrorOrNil()
}

func (r *Registry) loadSource(fs afero.Fs, catalog Catalog, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("read provider source: %w", err)
	}
	var src sourceFile
	if err := yaml.Unmarshal(data, &src); err != nil {
		return fmt.Errorf("parse provider source %s: %w", path, err)
	}

	var errs *multierror.Error
	for _, section := range []struct {
		key   string
		decls []Declaration
	}{
		{LegacySourceKey, src.Legacy},
		{SourceKey, src.Current},
	} {
		origin := path + "#" + section.key
		for i, decl := range section.decls {
			if err := r.loadDeclaration(fs, catalog, origin, decl); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s[%d]: %w", origin, i, err))
			}
		}
	}
	return errs.ErrorOrNil()
}

func (r *Registry) loadDeclaration(fs afero.Fs, catalog Catalog, origin string, decl Declaration) error {
	if decl.Element != "" && decl.Element != elementProviderFactory {
		level.Debug(r.logger).Log("msg", "ignoring declaration", "origin", origin, "element", decl.Element)
		return nil
	}
	ctor, ok := catalog[decl.Class]
	if !ok {
		return fmt.Errorf("unknown provider factory class %q", decl.Class)
	}
	f, err := ctor(log.With(r.logger, "factory", decl.Class), fs)
	if err != nil {
		return fmt.Errorf("create provider factory %q: %w", decl.Class, err)
	}
	if f == nil {
		return fmt.Errorf("create provider factory %q: %w", decl.Class, ErrInvalidFactory)
	}
	priority, ok := ParsePriority(decl.Priority)
	if !ok && decl.Priority != "" {
		level.Debug(r.logger).Log("msg", "malformed priority, using 0", "origin", origin, "class", decl.Class, "priority", decl.Priority)
	}
	return r.register(Registration{
		Name:     decl.Class,
		Factory:  f,
		Priority: priority,
		Origin:   origin,
	})
}
