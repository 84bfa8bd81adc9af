package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/tracesym/pkg/symbols"
	"github.com/grafana/tracesym/pkg/symbols/registry"
)

type resolveParams struct {
	trace     string
	addresses []string
}

func addResolveParams(cmd *kingpin.CmdClause) *resolveParams {
	params := &resolveParams{}
	cmd.Arg("trace", "Path to the YAML trace descriptor.").Required().StringVar(&params.trace)
	cmd.Arg("address", "Addresses to resolve, hexadecimal with 0x prefix or decimal.").Required().StringsVar(&params.addresses)
	return params
}

func resolve(ctx context.Context, fs afero.Fs, r *registry.Registry, params *resolveParams) error {
	t, err := symbols.LoadTrace(fs, params.trace)
	if err != nil {
		return err
	}
	addrs := make([]uint64, 0, len(params.addresses))
	for _, s := range params.addresses {
		addr, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", s, err)
		}
		addrs = append(addrs, addr)
	}

	p := r.Resolve(t)
	level.Debug(logger).Log("msg", "resolving addresses", "trace", t, "provider", p.Name(), "addresses", len(addrs))

	w := output(ctx)
	for _, addr := range addrs {
		frames := p.Resolve(addr)
		if len(frames) == 0 {
			fmt.Fprintf(w, "%s\t%s\n", symbols.FormatAddress(addr), symbols.FormatAddress(addr))
			continue
		}
		names := make([]string, 0, len(frames))
		for _, fr := range frames {
			names = append(names, formatFrame(fr))
		}
		fmt.Fprintf(w, "%s\t%s\n", symbols.FormatAddress(addr), strings.Join(names, " <- "))
	}
	return nil
}

func formatFrame(fr symbols.Frame) string {
	switch {
	case fr.File != "" && fr.Line > 0:
		return fmt.Sprintf("%s (%s:%d)", fr.Function, fr.File, fr.Line)
	case fr.File != "":
		return fmt.Sprintf("%s (%s)", fr.Function, fr.File)
	default:
		return fr.Function
	}
}
