package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/tracesym/pkg/symbolize"
	"github.com/grafana/tracesym/pkg/symbols/providers"
	"github.com/grafana/tracesym/pkg/symbols/registry"
)

var cfg struct {
	verbose   bool
	registry  registry.Config
	symbolize symbolize.Config
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	ctx := withOutput(context.Background(), os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Resolve symbols of recorded traces through prioritized symbol providers.").UsageWriter(os.Stdout)
	app.Version(version.Print("tracesym"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)
	app.Flag("sources", "Comma-separated YAML files declaring symbol provider factories. Built-in factories are registered with default priorities when empty.").SetValue(&cfg.registry.Sources)
	app.Flag("cache-size", "Maximum number of per-trace symbol providers kept open.").Default("256").IntVar(&cfg.registry.CacheSize)

	providersCmd := app.Command("providers", "List registered symbol provider factories in the order they are tried.")

	resolveCmd := app.Command("resolve", "Resolve addresses of a trace.")
	resolveParams := addResolveParams(resolveCmd)

	symbolizeCmd := app.Command("symbolize", "Symbolize pprof profiles recorded from a trace.")
	symbolizeParams := addSymbolizeParams(symbolizeCmd)
	symbolizeCmd.Flag("max-concurrency", "Maximum number of profiles symbolized concurrently.").Default("4").IntVar(&cfg.symbolize.MaxConcurrency)

	lidiaCmd := app.Command("lidia", "Build a lidia symbol table from an ELF executable.")
	lidiaParams := addLidiaParams(lidiaCmd)

	// parse command line arguments
	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// enable verbose logging if requested
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	if parsedCmd == lidiaCmd.FullCommand() {
		os.Exit(checkError(buildLidia(ctx, lidiaParams)))
	}

	fs := afero.NewOsFs()
	reg, err := newRegistry(fs, prometheus.NewRegistry())
	if err != nil {
		os.Exit(checkError(err))
	}
	defer reg.Close()

	switch parsedCmd {
	case providersCmd.FullCommand():
		err = listProviders(ctx, reg)
	case resolveCmd.FullCommand():
		err = resolve(ctx, fs, reg, resolveParams)
	case symbolizeCmd.FullCommand():
		err = symbolizeProfiles(ctx, fs, reg, symbolizeParams)
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
	if code := checkError(err); code != 0 {
		_ = reg.Close()
		os.Exit(code)
	}
}

// newRegistry builds the process-wide registry: factories declared in the
// configured sources, or the built-in ones when no source is configured.
func newRegistry(fs afero.Fs, reg prometheus.Registerer) (*registry.Registry, error) {
	r, err := registry.New(logger, cfg.registry, reg)
	if err != nil {
		return nil, err
	}
	if len(cfg.registry.Sources) == 0 {
		if err := providers.RegisterDefaults(r, logger, fs); err != nil {
			return nil, err
		}
	} else if err := r.Load(fs, providers.Catalog(), cfg.registry.Sources); err != nil {
		// Declarations that failed are skipped, the others are usable.
		level.Warn(logger).Log("msg", "some symbol provider declarations were skipped", "err", err)
	}
	r.Seal()
	return r, nil
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
	return 1
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
