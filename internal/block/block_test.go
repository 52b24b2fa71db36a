package block

import "testing"

func testDefs() []Def {
	return []Def{
		{Name: "temp", Persistence: Temp, Align: 4},
		{Name: "normal", Persistence: Normal, Align: 4},
		{Name: "runtime", Persistence: Runtime, Align: 4},
	}
}

func TestAllocMonotonic(t *testing.T) {
	a := New(testDefs())
	const normal = ID(1)
	off1, err := a.Alloc(normal, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	off2, err := a.Alloc(normal, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if off1 != 0 {
		t.Fatalf("first alloc offset = %d, want 0", off1)
	}
	if off2 <= off1 {
		t.Fatalf("second alloc offset %d is not strictly greater than first %d", off2, off1)
	}
	// alignment: off1+3=3, aligned up to 4 before the second alloc.
	if off2 != 4 {
		t.Fatalf("second alloc offset = %d, want 4 (aligned)", off2)
	}
}

func TestPushPop(t *testing.T) {
	a := New(testDefs())
	a.Push(0)
	a.Push(1)
	if got := a.Current(); got != 1 {
		t.Fatalf("Current() = %d, want 1", got)
	}
	a.Pop()
	if got := a.Current(); got != 0 {
		t.Fatalf("Current() after Pop = %d, want 0", got)
	}
}

func TestBlockOverflow(t *testing.T) {
	defs := testDefs()
	defs[1].MaxSize = 8
	a := New(defs)
	if _, err := a.Alloc(1, 8, 0); err != nil {
		t.Fatalf("allocation within bound failed: %v", err)
	}
	if _, err := a.Alloc(1, 1, 0); err == nil {
		t.Fatalf("allocation past MaxSize should have failed")
	}
}

func TestMisalignedAccess(t *testing.T) {
	a := New(testDefs())
	if _, err := a.Align(0, 3); err == nil {
		t.Fatalf("non-power-of-two alignment should have failed")
	}
}

func TestRuntimeBlockNeverWritten(t *testing.T) {
	a := New(testDefs())
	defer func() {
		if recover() == nil {
			t.Fatalf("writing to a runtime block should panic")
		}
	}()
	_ = a.Writer(2)
}

func TestWriteAndBytes(t *testing.T) {
	a := New(testDefs())
	if _, err := a.Alloc(1, len("hello"), 0); err != nil {
		t.Fatal(err)
	}
	w := a.Writer(1)
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if got, want := string(a.Bytes(1)), "hello"; got != want {
		t.Fatalf("Bytes() = %q, want %q", got, want)
	}
}
