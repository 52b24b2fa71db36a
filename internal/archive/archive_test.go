package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	entries := map[string][]byte{
		"gdt/weapons.gdt": []byte("weapon data"),
		"raw/one.raw":     []byte("raw bytes"),
	}
	order := []string{"gdt/weapons.gdt", "raw/one.raw"}

	var buf bytes.Buffer
	if err := Write(&buf, order, entries); err != nil {
		t.Fatalf("Write: %v", err)
	}

	a, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, name := range order {
		got, ok := a.Get(name)
		if !ok {
			t.Fatalf("Get(%q) not found", name)
		}
		if !bytes.Equal(got, entries[name]) {
			t.Errorf("Get(%q) = %q, want %q", name, got, entries[name])
		}
	}
	if _, ok := a.Get("missing"); ok {
		t.Errorf("Get(missing) should not be found")
	}
}

func TestRepositoryRefCounting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.cpio")

	var buf bytes.Buffer
	if err := Write(&buf, []string{"a"}, map[string][]byte{"a": []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRepository()
	a1, err := r.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	a2, err := r.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire (second): %v", err)
	}
	if a1 != a2 {
		t.Errorf("two Acquire calls for the same path should share one Archive")
	}
	if got := r.RefCount(path); got != 2 {
		t.Errorf("RefCount = %d, want 2", got)
	}

	r.Release(path)
	if got := r.RefCount(path); got != 1 {
		t.Errorf("RefCount after one Release = %d, want 1", got)
	}
	r.Release(path)
	if got := r.RefCount(path); got != 0 {
		t.Errorf("RefCount after both Release calls = %d, want 0", got)
	}
}
