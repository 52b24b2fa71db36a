package loader

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/hash"
	"github.com/sub20hz/OpenAssetTools/internal/pool"
)

// KindStringTable is the asset kind a StringTableLoader registers under.
const KindStringTable = 1

// StringTable is the payload of a loaded CSV string table asset: a
// row-major grid of cells plus each cell's R_HashString, matching Testable
// scenario S1.
type StringTable struct {
	Name    string
	Columns int
	Rows    int
	Cells   []string
	Hashes  []uint32
}

// Cell returns the text at (row, col).
func (t *StringTable) Cell(row, col int) string { return t.Cells[row*t.Columns+col] }

// StringTableLoader implements Loader for kind StringTable: it reads a CSV
// file from the asset search path, one source-format parser among the
// "per-asset source-format parsers" the walker's schema-driven model
// intentionally does not try to generalize (§1 Non-goals).
type StringTableLoader struct{}

var _ Loader = StringTableLoader{}

func (StringTableLoader) HandledKind() int { return KindStringTable }

func (StringTableLoader) CreateEmpty(name string) any {
	return &StringTable{Name: name}
}

func (StringTableLoader) CanLoadFromGDT() bool { return false }

func (StringTableLoader) LoadFromGDT(name string, gdt *GDT, mgr Manager, ctx Context) (Result, error) {
	return Result{}, xerrors.Errorf("stringtable %q: %w", name, ErrUnsupported)
}

func (StringTableLoader) CanLoadFromRaw() bool { return true }

func (StringTableLoader) LoadFromRaw(name string, searchPath []string, mgr Manager, ctx Context) (Result, error) {
	var data []byte
	var err error
	found := false
	for _, dir := range searchPath {
		data, err = os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			found = true
			break
		}
	}
	if !found {
		return Result{}, xerrors.Errorf("stringtable %q: not found on search path: %w", name, err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Result{}, xerrors.Errorf("stringtable %q: %w", name, err)
	}

	columns := 0
	for _, rec := range records {
		if len(rec) > columns {
			columns = len(rec)
		}
	}

	t := &StringTable{Name: name, Columns: columns, Rows: len(records)}
	t.Cells = make([]string, 0, len(records)*columns)
	t.Hashes = make([]uint32, 0, len(records)*columns)
	for _, rec := range records {
		for c := 0; c < columns; c++ {
			var cell string
			if c < len(rec) {
				cell = rec[c]
			}
			t.Cells = append(t.Cells, cell)
			t.Hashes = append(t.Hashes, hash.String(cell, 0))
		}
	}

	return Result{Payload: t}, nil
}

func (StringTableLoader) LoadFromGlobalPools(name string) (*pool.Asset, bool) {
	return nil, false
}

func (StringTableLoader) FinalizeForZone(ctx Context) error { return nil }
