package registry

import (
	"errors"
	"testing"

	"github.com/go-kit/log"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/grafana/tracesym/pkg/symbols"
)

func testCatalog(rec *recorder) Catalog {
	ctor := func(name string) Constructor {
		return func(log.Logger, afero.Fs) (symbols.Factory, error) {
			return rec.factory(name, false), nil
		}
	}
	return Catalog{
		"elf":      ctor("elf"),
		"mapping":  ctor("mapping"),
		"kallsyms": ctor("kallsyms"),
		"broken": func(log.Logger, afero.Fs) (symbols.Factory, error) {
			return nil, errors.New("cannot instantiate")
		},
		"empty": func(log.Logger, afero.Fs) (symbols.Factory, error) {
			return nil, nil
		},
	}
}

func TestParsePriority(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
		ok   bool
	}{
		{"", 0, false},
		{"10", 10, true},
		{" 7 ", 0, false},
		{"+7", 7, true},
		{"-3", -3, true},
		{"abc", 0, false},
		{"1.5", 0, false},
	} {
		got, ok := ParsePriority(tc.in)
		require.Equal(t, tc.want, got, tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/tracesym/old.yaml", []byte(`
symbolProvider:
  - element: providerFactory
    class: kallsyms
    priority: "5"
  - element: somethingElse
    class: elf
    priority: "1000"
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/etc/tracesym/new.yaml", []byte(`
symbolProvider:
  - class: mapping
    priority: abc
symbol_providers:
  - class: elf
    priority: 20
  - class: mapping
    priority: "5"
`), 0o644))

	r := newTestRegistry(t, 0)
	rec := &recorder{}
	err := r.Load(fs, testCatalog(rec), []string{"/etc/tracesym/old.yaml", "/etc/tracesym/new.yaml"})
	require.NoError(t, err)

	r.Seal()
	regs := r.Registrations()
	require.Len(t, regs, 4)

	type entry struct {
		name     string
		priority int
		origin   string
	}
	got := make([]entry, 0, len(regs))
	for _, reg := range regs {
		got = append(got, entry{reg.Name, reg.Priority, reg.Origin})
	}
	require.Equal(t, []entry{
		{"elf", 20, "/etc/tracesym/new.yaml#symbol_providers"},
		{"kallsyms", 5, "/etc/tracesym/old.yaml#symbolProvider"},
		{"mapping", 5, "/etc/tracesym/new.yaml#symbol_providers"},
		{"mapping", 0, "/etc/tracesym/new.yaml#symbolProvider"},
	}, got)

	r.Resolve(&symbols.Trace{ID: "t1"})
	require.Equal(t, []string{"elf", "kallsyms", "mapping", "mapping"}, rec.calls())
}

func TestLoad_SkipsFailingDeclarations(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/providers.yaml", []byte(`
symbol_providers:
  - class: mapping
    priority: "1"
  - class: broken
    priority: "100"
  - class: doesnotexist
  - class: empty
  - class: kallsyms
    priority: "2"
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/garbage.yaml", []byte("symbol_providers: {"), 0o644))

	r := newTestRegistry(t, 0)
	rec := &recorder{}
	err := r.Load(fs, testCatalog(rec), []string{"/providers.yaml", "/missing.yaml", "/garbage.yaml"})
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 5)
	require.Equal(t, 5.0, testutil.ToFloat64(r.metrics.loadErrors))

	r.Seal()
	regs := r.Registrations()
	require.Len(t, regs, 2)
	require.Equal(t, "kallsyms", regs[0].Name)
	require.Equal(t, "mapping", regs[1].Name)
}

func TestLoad_AfterSeal(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/providers.yaml", []byte(`
symbol_providers:
  - class: elf
`), 0o644))

	r := newTestRegistry(t, 0)
	r.Seal()
	err := r.Load(fs, testCatalog(&recorder{}), []string{"/providers.yaml"})
	require.ErrorIs(t, err, ErrSealed)
	require.Empty(t, r.Registrations())
}
