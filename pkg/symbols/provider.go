// Package symbols defines the types shared by symbol providers: the trace a
// provider is created for, the provider itself and the factories that build
// providers on demand.
package symbols

import (
	"fmt"
)

// Frame is a single symbolized frame. A lookup may yield several frames for
// one address when functions were inlined; the innermost frame comes first.
type Frame struct {
	Function string
	File     string
	Line     uint64
}

// Provider resolves addresses of a single trace to symbols.
type Provider interface {
	// Name identifies the kind of provider, e.g. "elf" or "kallsyms".
	Name() string
	// Resolve returns the frames for addr, or nil if the address is unknown.
	Resolve(addr uint64) []Frame
	// Close releases resources held by the provider.
	Close() error
}

// Factory attempts to build a Provider for a trace. A nil provider with a
// nil error means the factory does not apply to the trace.
type Factory interface {
	CreateProvider(t *Trace) (Provider, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(t *Trace) (Provider, error)

func (f FactoryFunc) CreateProvider(t *Trace) (Provider, error) {
	return f(t)
}

// DefaultProvider is the fallback used when no factory applies to a trace.
// It knows no symbols.
type DefaultProvider struct {
	trace *Trace
}

func NewDefaultProvider(t *Trace) *DefaultProvider {
	return &DefaultProvider{trace: t}
}

func (p *DefaultProvider) Name() string { return "default" }

func (p *DefaultProvider) Resolve(uint64) []Frame { return nil }

func (p *DefaultProvider) Close() error { return nil }

func (p *DefaultProvider) Trace() *Trace { return p.trace }

// FormatAddress renders an unresolved address the way it is displayed when
// no symbol is known for it.
func FormatAddress(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}

// FunctionName returns the name of the innermost frame for addr, falling back
// to the formatted address.
func FunctionName(p Provider, addr uint64) string {
	frames := p.Resolve(addr)
	if len(frames) == 0 || frames[0].Function == "" {
		return FormatAddress(addr)
	}
	return frames[0].Function
}
