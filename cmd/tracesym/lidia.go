package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grafana/tracesym/pkg/symbols/providers/elf"
)

type lidiaParams struct {
	binary string
	output string
}

func addLidiaParams(cmd *kingpin.CmdClause) *lidiaParams {
	params := &lidiaParams{}
	cmd.Arg("binary", "ELF executable, optionally gzip or zstd compressed.").Required().ExistingFileVar(&params.binary)
	cmd.Arg("output", "Path of the lidia table to write.").Required().StringVar(&params.output)
	return params
}

func buildLidia(_ context.Context, params *lidiaParams) error {
	in, err := os.Open(params.binary)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(params.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := elf.WriteLidia(in, out); err != nil {
		_ = out.Close()
		_ = os.Remove(params.output)
		return fmt.Errorf("%s: %w", params.binary, err)
	}
	var size string
	if st, err := out.Stat(); err == nil {
		size = humanize.Bytes(uint64(st.Size()))
	}
	if err := out.Close(); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "lidia table written", "binary", params.binary, "output", params.output, "size", size)
	return nil
}
