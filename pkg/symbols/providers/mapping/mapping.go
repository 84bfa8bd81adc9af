// Package mapping resolves symbols from nm-style mapping files.
//
// Each line holds an address, an optional size, a symbol type and a name:
//
//	0000000000401000 T main
//	0000000000401100 0000000000000042 t helper
//
// Undefined and weak-undefined symbols are skipped, as are blank lines and
// lines starting with '#'.
package mapping

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"

	"github.com/grafana/tracesym/pkg/symbols"
)

const Name = "mapping"

type Factory struct {
	logger log.Logger
	fs     afero.Fs
}

func NewFactory(logger log.Logger, fs afero.Fs) *Factory {
	return &Factory{logger: logger, fs: fs}
}

func (f *Factory) CreateProvider(t *symbols.Trace) (symbols.Provider, error) {
	path, ok := t.Path(symbols.AttrMapping)
	if !ok {
		return nil, nil
	}
	base, err := t.Base()
	if err != nil {
		return nil, err
	}
	file, err := f.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping file: %w", err)
	}
	defer file.Close()

	syms, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse mapping file %s: %w", path, err)
	}
	if len(syms) == 0 {
		level.Warn(f.logger).Log("msg", "mapping file has no symbols", "path", path, "trace", t.ID)
		return nil, nil
	}
	table := symbols.NewTable(syms)
	table.Rebase(base)
	level.Debug(f.logger).Log("msg", "loaded mapping file", "path", path, "symbols", table.Len())
	return symbols.NewTableProvider(Name, table), nil
}

// Parse reads the symbols of a mapping file.
func Parse(r io.Reader) ([]symbols.Symbol, error) {
	var syms []symbols.Symbol
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		sym, ok, err := parseLine(string(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		if ok {
			syms = append(syms, sym)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return syms, nil
}

func parseLine(line string) (symbols.Symbol, bool, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return symbols.Symbol{}, false, fmt.Errorf("malformed line %q", line)
	}
	// "U name" and "w name" lines have no address.
	if len(fields) == 2 && isUndefined(fields[0]) {
		return symbols.Symbol{}, false, nil
	}
	if len(fields) < 3 {
		return symbols.Symbol{}, false, fmt.Errorf("malformed line %q", line)
	}
	addr, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return symbols.Symbol{}, false, fmt.Errorf("invalid address %q: %w", fields[0], err)
	}
	rest := fields[1:]
	// An optional size column precedes the single letter type.
	if len(rest) >= 3 && len(rest[1]) == 1 {
		if _, err := strconv.ParseUint(rest[0], 16, 64); err == nil {
			rest = rest[1:]
		}
	}
	typ, name := rest[0], strings.Join(rest[1:], " ")
	if len(typ) != 1 {
		return symbols.Symbol{}, false, fmt.Errorf("invalid symbol type %q", typ)
	}
	if isUndefined(typ) {
		return symbols.Symbol{}, false, nil
	}
	return symbols.Symbol{Start: addr, Name: name}, true, nil
}

func isUndefined(typ string) bool {
	return typ == "U" || typ == "w" || typ == "v"
}
