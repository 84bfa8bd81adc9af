package symbols

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Well-known trace attributes consulted by the built-in providers.
const (
	AttrBinary   = "binary"
	AttrBuildID  = "build_id"
	AttrKallsyms = "kallsyms"
	AttrMapping  = "symbols.mapping"
	AttrLidia    = "symbols.lidia"
	AttrBase     = "symbols.base"
)

var ErrMissingTraceID = errors.New("trace id is empty")

// Trace is the handle symbol providers are requested for. Two traces are the
// same trace if they have the same ID.
type Trace struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes"`

	// Dir is the directory relative attribute paths are resolved against.
	Dir string `yaml:"-"`
}

func (t *Trace) String() string {
	if t.Name == "" || t.Name == t.ID {
		return t.ID
	}
	return fmt.Sprintf("%s (%s)", t.Name, t.ID)
}

func (t *Trace) Attribute(key string) (string, bool) {
	v, ok := t.Attributes[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Path returns the attribute as a file path. Relative paths are resolved
// against the trace directory.
func (t *Trace) Path(key string) (string, bool) {
	v, ok := t.Attribute(key)
	if !ok {
		return "", false
	}
	if filepath.IsAbs(v) || t.Dir == "" {
		return v, true
	}
	return filepath.Join(t.Dir, v), true
}

// Base returns the load offset of the traced binary. It accepts decimal or
// 0x-prefixed hexadecimal values and defaults to 0.
func (t *Trace) Base() (uint64, error) {
	v, ok := t.Attribute(AttrBase)
	if !ok {
		return 0, nil
	}
	base, err := strconv.ParseUint(strings.TrimSpace(v), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", AttrBase, v, err)
	}
	return base, nil
}

// LoadTrace reads a YAML trace descriptor. The descriptor directory becomes
// the trace directory.
func LoadTrace(fs afero.Fs, path string) (*Trace, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read trace descriptor: %w", err)
	}
	var t Trace
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse trace descriptor %s: %w", path, err)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingTraceID)
	}
	if t.Name == "" {
		t.Name = t.ID
	}
	t.Dir = filepath.Dir(path)
	return &t, nil
}
