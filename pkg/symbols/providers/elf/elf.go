// Package elf resolves symbols of user space binaries through lidia tables.
//
// A trace either points at a prebuilt lidia table (symbols.lidia) or at the
// traced executable (binary), which may be gzip or zstd compressed. In the
// latter case the lidia table is built from the ELF symbol table in a
// temporary file and then served from memory.
package elf

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/pyroscope/lidia"
	"github.com/spf13/afero"

	"github.com/grafana/tracesym/pkg/symbols"
)

const Name = "elf"

type Factory struct {
	logger log.Logger
	fs     afero.Fs
}

func NewFactory(logger log.Logger, fs afero.Fs) *Factory {
	return &Factory{logger: logger, fs: fs}
}

func (f *Factory) CreateProvider(t *symbols.Trace) (symbols.Provider, error) {
	base, err := t.Base()
	if err != nil {
		return nil, err
	}
	if path, ok := t.Path(symbols.AttrLidia); ok {
		table, err := f.openLidia(path)
		if err != nil {
			return nil, err
		}
		return newProvider(table, base), nil
	}
	if path, ok := t.Path(symbols.AttrBinary); ok {
		expectedBuildID, _ := t.Attribute(symbols.AttrBuildID)
		table, err := f.buildLidia(path, expectedBuildID)
		if err != nil || table == nil {
			return nil, err
		}
		return newProvider(table, base), nil
	}
	return nil, nil
}

func (f *Factory) openLidia(path string) (*lidia.Table, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lidia table: %w", err)
	}
	table, err := lidia.OpenReader(file, lidia.WithCRC())
	if err != nil {
		// OpenReader closes the file on failure.
		return nil, fmt.Errorf("open lidia table %s: %w", path, err)
	}
	return table, nil
}

// buildLidia converts the executable at path into an in-memory lidia table.
// A nil table without error is returned when the executable does not match
// the expected build ID.
func (f *Factory) buildLidia(path, expectedBuildID string) (*lidia.Table, error) {
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read binary: %w", err)
	}
	data, err = decompress(data)
	if err != nil {
		return nil, err
	}
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse ELF file %s: %w", path, err)
	}
	defer ef.Close()

	if expectedBuildID != "" {
		actual, err := BuildID(ef)
		if err != nil {
			level.Warn(f.logger).Log("msg", "cannot read build ID", "path", path, "err", err)
			return nil, nil
		}
		if !strings.EqualFold(actual, expectedBuildID) {
			level.Warn(f.logger).Log("msg", "build ID mismatch", "path", path, "expected", expectedBuildID, "actual", actual)
			return nil, nil
		}
	}

	lidiaData, err := createLidia(ef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	table, err := lidia.OpenReader(newReaderAtCloser(lidiaData), lidia.WithCRC())
	if err != nil {
		return nil, fmt.Errorf("open lidia table for %s: %w", path, err)
	}
	return table, nil
}

// WriteLidia writes the lidia table of the executable read from r to w.
func WriteLidia(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read binary: %w", err)
	}
	data, err = decompress(data)
	if err != nil {
		return err
	}
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse ELF file: %w", err)
	}
	defer ef.Close()

	lidiaData, err := createLidia(ef)
	if err != nil {
		return err
	}
	_, err = w.Write(lidiaData)
	return err
}

// createLidia returns the lidia table of ef. The lidia writer only accepts
// an *os.File, so the table goes through a temporary file.
func createLidia(ef *elf.File) ([]byte, error) {
	tmp, err := os.CreateTemp("", "tracesym-*.lidia")
	if err != nil {
		return nil, fmt.Errorf("create temporary lidia file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err := lidia.CreateLidiaFromELF(ef, tmp, lidia.WithCRC(), lidia.WithFiles(), lidia.WithLines()); err != nil {
		return nil, fmt.Errorf("create lidia table: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(tmp)
	if err != nil {
		return nil, fmt.Errorf("read lidia table: %w", err)
	}
	return data, nil
}

// provider serializes lookups, lidia tables reuse an internal buffer.
type provider struct {
	mu     sync.Mutex
	table  *lidia.Table
	base   uint64
	frames []lidia.SourceInfoFrame
}

func newProvider(table *lidia.Table, base uint64) *provider {
	return &provider{table: table, base: base}
}

func (p *provider) Name() string { return Name }

func (p *provider) Resolve(addr uint64) []symbols.Frame {
	if addr < p.base {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table == nil {
		return nil
	}
	var err error
	p.frames, err = p.table.Lookup(p.frames, addr-p.base)
	if err != nil || len(p.frames) == 0 {
		return nil
	}
	res := make([]symbols.Frame, 0, len(p.frames))
	for _, fr := range p.frames {
		res = append(res, symbols.Frame{
			Function: fr.FunctionName,
			File:     fr.FilePath,
			Line:     fr.LineNumber,
		})
	}
	return res
}

func (p *provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.table != nil {
		p.table.Close()
		p.table = nil
	}
	return nil
}
