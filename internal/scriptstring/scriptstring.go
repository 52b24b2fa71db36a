// Package scriptstring implements the per-zone script-string table (C5): a
// 16-bit id space interning small strings, plus the process-global
// interner that read remaps zone-local ids into.
package scriptstring

import (
	"sync"

	"golang.org/x/xerrors"
)

// ErrTableFull is returned once a zone's table would exceed the 16-bit id
// space.
var ErrTableFull = xerrors.New("scriptstring: table full")

// Table is one zone's script-string table: a bidirectional mapping between
// 16-bit ids and the strings they intern. Id 0 is always "" (Invariant E1).
type Table struct {
	list    []string
	byValue map[string]uint16
}

// New creates a Table with id 0 already populated as the empty string.
func New() *Table {
	t := &Table{
		list:    []string{""},
		byValue: map[string]uint16{"": 0},
	}
	return t
}

// Intern returns the id for s, allocating a new one if s has not been seen
// in this zone before.
func (t *Table) Intern(s string) (uint16, error) {
	if id, ok := t.byValue[s]; ok {
		return id, nil
	}
	if len(t.list) >= 1<<16 {
		return 0, ErrTableFull
	}
	id := uint16(len(t.list))
	t.list = append(t.list, s)
	t.byValue[s] = id
	return id, nil
}

// Count returns the number of interned strings, including the empty
// string at id 0.
func (t *Table) Count() int { return len(t.list) }

// String returns the string at id, for dumpers translating ids back to
// text. It panics if id is out of range, mirroring a slice index.
func (t *Table) String(id uint16) string { return t.list[id] }

// ID returns the id of s if it has been interned, and whether it was found.
func (t *Table) ID(s string) (uint16, bool) {
	id, ok := t.byValue[s]
	return id, ok
}

// Strings returns the table contents in emission order (Invariant E2: for
// every interned s, list[byValue[s]] == s).
func (t *Table) Strings() []string {
	out := make([]string, len(t.list))
	copy(out, t.list)
	return out
}

// Load replaces the table contents with strings, in id order. Used when
// reading a zone: ids are assigned positionally from the on-disk table.
func Load(strings []string) (*Table, error) {
	if len(strings) == 0 || strings[0] != "" {
		return nil, xerrors.New("scriptstring: id 0 must be the empty string")
	}
	t := &Table{
		list:    append([]string(nil), strings...),
		byValue: make(map[string]uint16, len(strings)),
	}
	for i, s := range strings {
		if _, ok := t.byValue[s]; !ok {
			t.byValue[s] = uint16(i)
		}
	}
	return t, nil
}

// Interner is the process-global string interner that zone-local
// script-string ids are remapped into on read, so that two zones
// interning the same text end up with a shared global id (§4.5).
type Interner struct {
	mu      sync.Mutex
	byValue map[string]uint32
	list    []string
}

// Global is the process-lifetime interner shared by every loaded zone.
var Global = NewInterner()

// NewInterner creates an empty Interner. Tests use this to avoid sharing
// state with Global.
func NewInterner() *Interner {
	return &Interner{byValue: map[string]uint32{"": 0}, list: []string{""}}
}

// Intern returns the global id for s, assigning a new one on first use.
func (in *Interner) Intern(s string) uint32 {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.byValue[s]; ok {
		return id
	}
	id := uint32(len(in.list))
	in.list = append(in.list, s)
	in.byValue[s] = id
	return id
}

// String returns the interned string for a global id.
func (in *Interner) String(id uint32) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.list[id]
}

// RemapTable builds the per-zone-id -> global-id remap table for every
// entry of t, interning each into in as a side effect.
func RemapTable(in *Interner, t *Table) []uint32 {
	remap := make([]uint32, t.Count())
	for i, s := range t.Strings() {
		remap[i] = in.Intern(s)
	}
	return remap
}
