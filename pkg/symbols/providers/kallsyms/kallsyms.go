// Package kallsyms resolves kernel addresses from a /proc/kallsyms dump
// captured alongside a kernel trace.
package kallsyms

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"

	"github.com/grafana/tracesym/pkg/symbols"
)

const Name = "kallsyms"

var kernelModule = []byte("kernel")

type Factory struct {
	logger log.Logger
	fs     afero.Fs
}

func NewFactory(logger log.Logger, fs afero.Fs) *Factory {
	return &Factory{logger: logger, fs: fs}
}

func (f *Factory) CreateProvider(t *symbols.Trace) (symbols.Provider, error) {
	path, ok := t.Path(symbols.AttrKallsyms)
	if !ok {
		return nil, nil
	}
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read kallsyms: %w", err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse kallsyms %s: %w", path, err)
	}
	if table.Len() == 0 {
		level.Warn(f.logger).Log("msg", "kallsyms is empty or all addresses are zero. the dump was probably taken with kptr_restrict enabled", "path", path, "trace", t.ID)
		return nil, nil
	}
	return symbols.NewTableProvider(Name, table), nil
}

// Parse builds a symbol table from the kallsyms format:
//
//	ffffffff81000000 T _stext
//	ffffffffc0a01000 t nf_hook	[nf_tables]
//
// Module names follow the symbol name after a tab. Data symbols (b, d, r)
// are skipped. A dump where every address is zero yields an empty table.
func Parse(kallsyms []byte) (*symbols.Table, error) {
	var syms []symbols.Symbol
	allZeros := true
	for len(kallsyms) > 0 {
		i := bytes.IndexByte(kallsyms, '\n')
		var line []byte
		if i == -1 {
			line = kallsyms
			kallsyms = nil
		} else {
			line = kallsyms[:i]
			kallsyms = kallsyms[i+1:]
		}
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}

		space := bytes.IndexByte(line, ' ')
		if space == -1 {
			return nil, fmt.Errorf("no space found in %q", line)
		}
		addr := line[:space]
		line = line[space+1:]

		space = bytes.IndexByte(line, ' ')
		if space == -1 {
			return nil, fmt.Errorf("no space found in %q", line)
		}
		typ := line[:space]
		line = line[space+1:]
		if len(typ) == 0 {
			return nil, fmt.Errorf("empty symbol type")
		}

		name, mod := line, kernelModule
		if tab := bytes.IndexByte(line, '\t'); tab != -1 {
			name, mod = line[:tab], line[tab+1:]
		}

		switch typ[0] {
		case 'b', 'B', 'd', 'D', 'r', 'R':
			continue
		}

		start, err := strconv.ParseUint(string(addr), 16, 64)
		if err != nil {
			return nil, err
		}
		if bytes.HasPrefix(mod, []byte{'['}) && bytes.HasSuffix(mod, []byte{']'}) {
			mod = mod[1 : len(mod)-1]
		}
		if start != 0 {
			allZeros = false
		}
		syms = append(syms, symbols.Symbol{Start: start, Name: string(name), Module: string(mod)})
	}
	if allZeros {
		return symbols.NewTable(nil), nil
	}
	return symbols.NewTable(syms), nil
}
