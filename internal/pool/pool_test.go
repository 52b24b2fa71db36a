package pool

import "testing"

func TestAddIdempotentVsDuplicate(t *testing.T) {
	p := New()
	payload := new(int)
	a1 := &Asset{Kind: 1, Name: "x", Payload: payload}
	if err := p.Add(a1); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	// same payload address: idempotent no-op.
	a2 := &Asset{Kind: 1, Name: "x", Payload: payload}
	if err := p.Add(a2); err != nil {
		t.Fatalf("re-registering identical payload should be a no-op: %v", err)
	}
	// different payload: fails.
	a3 := &Asset{Kind: 1, Name: "x", Payload: new(int)}
	if err := p.Add(a3); err == nil {
		t.Fatalf("registering a different payload under the same name should fail")
	}
}

func TestFindAndOrder(t *testing.T) {
	p := New()
	names := []string{"c", "a", "b"}
	for _, n := range names {
		if err := p.Add(&Asset{Kind: 2, Name: n, Payload: n}); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := p.Find(2, "missing"); ok {
		t.Fatalf("Find should report false for an unregistered name")
	}
	for i, a := range p.Order() {
		if a.Name != names[i] {
			t.Fatalf("Order()[%d] = %q, want %q (insertion order)", i, a.Name, names[i])
		}
	}
}

func TestRegistryReverseLoadOrder(t *testing.T) {
	r := NewRegistry()

	older := New()
	older.Add(&Asset{Kind: 5, Name: "$white", Payload: "older"})
	r.Register(older)

	newer := New()
	newer.Add(&Asset{Kind: 5, Name: "$white", Payload: "newer"})
	r.Register(newer)

	a, ok := r.Find(5, "$white")
	if !ok {
		t.Fatalf("Find should locate the asset")
	}
	if a.Payload != "newer" {
		t.Fatalf("Find should prefer the most recently loaded zone, got %v", a.Payload)
	}

	r.Unload(newer)
	a, ok = r.Find(5, "$white")
	if !ok || a.Payload != "older" {
		t.Fatalf("after unloading the newer zone, Find should fall back to the older one")
	}
}
