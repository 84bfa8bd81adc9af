package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-kit/log/level"
	"github.com/google/pprof/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/tracesym/pkg/symbolize"
	"github.com/grafana/tracesym/pkg/symbols"
	"github.com/grafana/tracesym/pkg/symbols/registry"
)

type symbolizeParams struct {
	trace     string
	outputDir string
	profiles  []string
}

func addSymbolizeParams(cmd *kingpin.CmdClause) *symbolizeParams {
	params := &symbolizeParams{}
	cmd.Flag("output-dir", "Directory the symbolized profiles are written to.").Default("./symbolized").StringVar(&params.outputDir)
	cmd.Arg("trace", "Path to the YAML trace descriptor.").Required().StringVar(&params.trace)
	cmd.Arg("profile", "pprof files recorded from the trace.").Required().StringsVar(&params.profiles)
	return params
}

func symbolizeProfiles(ctx context.Context, fs afero.Fs, r *registry.Registry, params *symbolizeParams) error {
	t, err := symbols.LoadTrace(fs, params.trace)
	if err != nil {
		return err
	}
	s, err := symbolize.New(logger, cfg.symbolize, r, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	jobs := make([]symbolize.Job, 0, len(params.profiles))
	for _, path := range params.profiles {
		p, err := readProfile(fs, path)
		if err != nil {
			return err
		}
		jobs = append(jobs, symbolize.Job{Trace: t, Profile: p})
	}

	stats, err := s.SymbolizeAll(ctx, jobs)
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(params.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for i, job := range jobs {
		dst := filepath.Join(params.outputDir, filepath.Base(params.profiles[i]))
		if err := writeProfile(fs, dst, job.Profile); err != nil {
			return err
		}
		level.Info(logger).Log("msg", "symbolized profile", "src", params.profiles[i], "dst", dst, "symbolized", stats[i].Symbolized, "unresolved", stats[i].Unresolved)
	}
	return nil
}

func readProfile(fs afero.Fs, path string) (*profile.Profile, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()
	p, err := profile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}

func writeProfile(fs afero.Fs, path string, p *profile.Profile) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	if err := p.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write profile %s: %w", path, err)
	}
	return f.Close()
}
