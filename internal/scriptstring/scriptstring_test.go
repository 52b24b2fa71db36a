package scriptstring

import "testing"

func TestIdZeroIsEmptyString(t *testing.T) {
	tbl := New()
	if got := tbl.String(0); got != "" {
		t.Fatalf("String(0) = %q, want \"\"", got)
	}
	if id, ok := tbl.ID(""); !ok || id != 0 {
		t.Fatalf("ID(\"\") = (%d, %v), want (0, true)", id, ok)
	}
}

func TestInternRoundTrip(t *testing.T) {
	tbl := New()
	id, err := tbl.Intern("snd_alias")
	if err != nil {
		t.Fatal(err)
	}
	if tbl.String(id) != "snd_alias" {
		t.Fatalf("round trip through Intern/String failed")
	}
	// interning the same string twice must return the same id.
	id2, err := tbl.Intern("snd_alias")
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id {
		t.Fatalf("re-interning changed id: %d != %d", id2, id)
	}
}

func TestLoadRejectsMissingEmptyString(t *testing.T) {
	if _, err := Load([]string{"not_empty"}); err == nil {
		t.Fatalf("Load should reject a table whose id 0 is not the empty string")
	}
}

func TestRemapTableSharesAcrossZones(t *testing.T) {
	in := NewInterner()

	zoneA := New()
	idA, _ := zoneA.Intern("$white")
	remapA := RemapTable(in, zoneA)

	zoneB := New()
	idB, _ := zoneB.Intern("$white")
	remapB := RemapTable(in, zoneB)

	if remapA[idA] != remapB[idB] {
		t.Fatalf("two zones interning the same text got different global ids: %d != %d", remapA[idA], remapB[idB])
	}
}
