package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sub20hz/OpenAssetTools/internal/hash"
)

func TestStringTableLoadFromRaw(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "strings"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "strings", "test.csv")
	if err := os.WriteFile(path, []byte("a,b\nc,d\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var l StringTableLoader
	res, err := l.LoadFromRaw("strings/test.csv", []string{dir}, nil, nil)
	if err != nil {
		t.Fatalf("LoadFromRaw: %v", err)
	}
	table := res.Payload.(*StringTable)
	if table.Rows != 2 || table.Columns != 2 {
		t.Fatalf("got %dx%d cells, want 2x2", table.Rows, table.Columns)
	}
	want := []string{"a", "b", "c", "d"}
	for i, cell := range want {
		if table.Cells[i] != cell {
			t.Errorf("Cells[%d] = %q, want %q", i, table.Cells[i], cell)
		}
		if table.Hashes[i] != hash.String(cell, 0) {
			t.Errorf("Hashes[%d] = %#x, want %#x", i, table.Hashes[i], hash.String(cell, 0))
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(StringTableLoader{})
	l, ok := r.Get(KindStringTable)
	if !ok {
		t.Fatalf("Get(KindStringTable) not found")
	}
	if l.HandledKind() != KindStringTable {
		t.Errorf("HandledKind() = %d, want %d", l.HandledKind(), KindStringTable)
	}
	if _, ok := r.Get(999); ok {
		t.Errorf("Get(999) should not be found")
	}
}
