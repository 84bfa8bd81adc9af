package symbols

import (
	"sort"
)

type Symbol struct {
	Start  uint64
	Name   string
	Module string
}

// Table is a symbol table sorted by start address. A symbol covers every
// address up to the start of the next one.
type Table struct {
	symbols []Symbol
	base    uint64
}

// NewTable sorts symbols by start address and builds a table from them.
func NewTable(symbols []Symbol) *Table {
	sort.SliceStable(symbols, func(i, j int) bool {
		return symbols[i].Start < symbols[j].Start
	})
	return &Table{symbols: symbols}
}

func (t *Table) Rebase(base uint64) {
	t.base = base
}

func (t *Table) Len() int {
	return len(t.symbols)
}

func (t *Table) Resolve(addr uint64) (Symbol, bool) {
	if len(t.symbols) == 0 {
		return Symbol{}, false
	}
	if addr < t.base {
		return Symbol{}, false
	}
	addr -= t.base
	if addr < t.symbols[0].Start {
		return Symbol{}, false
	}
	i := sort.Search(len(t.symbols), func(i int) bool {
		return addr < t.symbols[i].Start
	})
	i--
	return t.symbols[i], true
}

// TableProvider serves lookups from an in-memory Table.
type TableProvider struct {
	name  string
	table *Table
}

func NewTableProvider(name string, table *Table) *TableProvider {
	return &TableProvider{name: name, table: table}
}

func (p *TableProvider) Name() string { return p.name }

func (p *TableProvider) Resolve(addr uint64) []Frame {
	sym, ok := p.table.Resolve(addr)
	if !ok {
		return nil
	}
	return []Frame{{Function: sym.Name, File: sym.Module}}
}

func (p *TableProvider) Close() error { return nil }
