package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/grafana/tracesym/pkg/symbolize"
	"github.com/grafana/tracesym/pkg/symbols"
	"github.com/grafana/tracesym/pkg/symbols/registry"
)

func testFs(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/traces/stress/trace.yaml", []byte(`
id: stress-1
name: stress
attributes:
  symbols.mapping: stress.syms
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/traces/stress/stress.syms", []byte(`
0000000000401000 T _init
0000000000401500 T main
0000000000402745 t hogcpu
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/etc/tracesym/providers.yaml", []byte(`
symbol_providers:
  - class: kallsyms
    priority: "50"
  - class: mapping
    priority: "10"
  - class: unknown
`), 0o644))
	return fs
}

func resetConfig(t *testing.T) {
	reset := func() {
		cfg.registry, cfg.symbolize = registry.Config{}, symbolize.Config{}
		flagext.DefaultValues(&cfg.registry, &cfg.symbolize)
	}
	reset()
	t.Cleanup(reset)
}

func TestProviders(t *testing.T) {
	resetConfig(t)
	fs := testFs(t)

	r, err := newRegistry(fs, prometheus.NewRegistry())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, listProviders(withOutput(context.Background(), &buf), r))
	out := buf.String()
	require.Contains(t, out, "FACTORY")
	for _, name := range []string{"mapping", "elf", "kallsyms", "api"} {
		require.Contains(t, out, name)
	}

	cfg.registry.Sources = []string{"/etc/tracesym/providers.yaml"}
	r, err = newRegistry(fs, prometheus.NewRegistry())
	require.NoError(t, err)
	regs := r.Registrations()
	require.Len(t, regs, 2)
	require.Equal(t, "kallsyms", regs[0].Name)
	require.Equal(t, "mapping", regs[1].Name)
}

func TestResolve(t *testing.T) {
	resetConfig(t)
	fs := testFs(t)
	r, err := newRegistry(fs, prometheus.NewRegistry())
	require.NoError(t, err)

	var buf bytes.Buffer
	err = resolve(withOutput(context.Background(), &buf), fs, r, &resolveParams{
		trace:     "/traces/stress/trace.yaml",
		addresses: []string{"0x401504", "4204357", "0x10"},
	})
	require.NoError(t, err)
	require.Equal(t, "0x401504\tmain\n0x402745\thogcpu\n0x10\t0x10\n", buf.String())

	err = resolve(context.Background(), fs, r, &resolveParams{
		trace:     "/traces/stress/trace.yaml",
		addresses: []string{"zz"},
	})
	require.Error(t, err)
}

const stressBinary = "../../pkg/symbols/providers/elf/testdata/stress"

func TestResolve_Binary(t *testing.T) {
	resetConfig(t)
	data, err := os.ReadFile(stressBinary)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/traces/native/stress", data, 0o755))
	require.NoError(t, afero.WriteFile(fs, "/traces/native/trace.yaml", []byte(`
id: native-1
attributes:
  binary: stress
  build_id: 67f2aee4474dbe769de49c80a149f8652491fd26
`), 0o644))

	r, err := newRegistry(fs, prometheus.NewRegistry())
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	err = resolve(withOutput(context.Background(), &buf), fs, r, &resolveParams{
		trace:     "/traces/native/trace.yaml",
		addresses: []string{"0x40110a", "0x401151", "0x100"},
	})
	require.NoError(t, err)
	require.Equal(t, "0x40110a\thogcpu\n0x401151\tmain\n0x100\t0x100\n", buf.String())
	require.Equal(t, 1, r.Cached())
}

func TestBuildLidia(t *testing.T) {
	resetConfig(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "stress.lidia")
	require.NoError(t, buildLidia(context.Background(), &lidiaParams{binary: stressBinary, output: out}))

	fs := afero.NewOsFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "trace.yaml"), []byte(`
id: lidia-1
attributes:
  symbols.lidia: stress.lidia
`), 0o644))

	r, err := newRegistry(fs, prometheus.NewRegistry())
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	err = resolve(withOutput(context.Background(), &buf), fs, r, &resolveParams{
		trace:     filepath.Join(dir, "trace.yaml"),
		addresses: []string{"0x401130"},
	})
	require.NoError(t, err)
	require.Equal(t, "0x401130\thogio\n", buf.String())

	err = buildLidia(context.Background(), &lidiaParams{binary: filepath.Join(dir, "trace.yaml"), output: filepath.Join(dir, "bad.lidia")})
	require.Error(t, err)
	require.NoFileExists(t, filepath.Join(dir, "bad.lidia"))
}

func TestSymbolizeProfiles(t *testing.T) {
	resetConfig(t)
	fs := testFs(t)

	m := &profile.Mapping{ID: 1, Start: 0x400000, Limit: 0x500000, File: "/usr/bin/stress"}
	loc := &profile.Location{ID: 1, Mapping: m, Address: 0x402800}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "cpu", Unit: "nanoseconds"}},
		Sample:     []*profile.Sample{{Location: []*profile.Location{loc}, Value: []int64{100}}},
		Mapping:    []*profile.Mapping{m},
		Location:   []*profile.Location{loc},
	}
	var raw bytes.Buffer
	require.NoError(t, p.Write(&raw))
	require.NoError(t, afero.WriteFile(fs, "/profiles/cpu.pb.gz", raw.Bytes(), 0o644))

	r, err := newRegistry(fs, prometheus.NewRegistry())
	require.NoError(t, err)

	err = symbolizeProfiles(context.Background(), fs, r, &symbolizeParams{
		trace:     "/traces/stress/trace.yaml",
		outputDir: "/out",
		profiles:  []string{"/profiles/cpu.pb.gz"},
	})
	require.NoError(t, err)

	got, err := readProfile(fs, "/out/cpu.pb.gz")
	require.NoError(t, err)
	require.Len(t, got.Location, 1)
	require.Len(t, got.Location[0].Line, 1)
	require.Equal(t, "hogcpu", got.Location[0].Line[0].Function.Name)
}

func TestFormatFrame(t *testing.T) {
	require.Equal(t, "main", formatFrame(symbols.Frame{Function: "main"}))
	require.Equal(t, "nft_do_chain (nf_tables)", formatFrame(symbols.Frame{Function: "nft_do_chain", File: "nf_tables"}))
	require.Equal(t, "main (stress.c:87)", formatFrame(symbols.Frame{Function: "main", File: "stress.c", Line: 87}))
}
