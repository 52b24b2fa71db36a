package walker

import (
	"testing"

	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/pointer"
	"github.com/sub20hz/OpenAssetTools/internal/pool"
	"github.com/sub20hz/OpenAssetTools/internal/schema"
	"github.com/sub20hz/OpenAssetTools/internal/scriptstring"
)

func newTestWalker(strict bool) (*Walker, *block.Allocator) {
	alloc := block.New([]block.Def{{Name: "normal", Persistence: block.Normal, Align: 4}})
	alloc.Push(0)
	w := New(alloc, pointer.New(), scriptstring.New(), pool.New(), pool.NewRegistry(), Options{BlockBits: 8, Strict: strict})
	return w, alloc
}

// rereadWalker builds a fresh Walker sharing the same allocator and pool
// state, the way a zone load creates a new walker over the block-size table
// read from the header.
func rereadWalker(w *Walker, alloc *block.Allocator) *Walker {
	alloc.AllocArenas([]uint32{alloc.Cursor(0)})
	copy(alloc.Arena(0), alloc.Bytes(0))
	return New(alloc, pointer.New(), w.Strings, w.Pool, w.Registry, w.opts)
}

var nodeType = func() *schema.StructType {
	t := &schema.StructType{
		Name: "Node",
		Fields: []schema.Field{
			{Name: "Name", Kind: schema.String, Block: -1},
			{Name: "Value", Kind: schema.Scalar, Size: 4, Block: -1},
			{Name: "Next", Kind: schema.Ptr, Block: -1},
		},
	}
	t.Fields[2].Elem = t
	t.Resolve()
	return t
}()

func newNode(name string, value uint64, next *schema.Struct) *schema.Struct {
	s := schema.NewStruct(nodeType)
	s.Set("Name", name)
	s.Set("Value", value)
	s.Set("Next", next)
	return s
}

func TestRoundTripScalarAndString(t *testing.T) {
	w, alloc := newTestWalker(true)
	root := newNode("leaf", 42, nil)

	tag, err := w.WriteRoot(0, root)
	if err != nil {
		t.Fatalf("WriteRoot: %v", err)
	}

	rw := rereadWalker(w, alloc)
	got, err := rw.ReadRoot(block.ID(tag.Block), tag.Offset, nodeType)
	if err != nil {
		t.Fatalf("ReadRoot: %v", err)
	}
	if got.Get("Name") != "leaf" {
		t.Errorf("Name = %v, want leaf", got.Get("Name"))
	}
	if got.Get("Value") != uint64(42) {
		t.Errorf("Value = %v, want 42", got.Get("Value"))
	}
	if got.Get("Next") != nil {
		t.Errorf("Next = %v, want nil", got.Get("Next"))
	}
}

// TestPointerIdentity exercises Testable property 4 and Invariant C1: a
// struct pointed to by two fields is serialized once and, on read, the two
// fields decode to the identical *schema.Struct.
func TestPointerIdentity(t *testing.T) {
	w, alloc := newTestWalker(true)

	shared := newNode("shared", 7, nil)
	a := newNode("a", 1, shared)
	// A second, independent root also points at the same shared node.
	listType := &schema.StructType{
		Name: "List",
		Fields: []schema.Field{
			{Name: "First", Kind: schema.Ptr, Block: -1, Elem: nodeType},
			{Name: "Second", Kind: schema.Ptr, Block: -1, Elem: nodeType},
		},
	}
	listType.Resolve()
	list := schema.NewStruct(listType)
	list.Set("First", a)
	list.Set("Second", shared)

	tag, err := w.WriteRoot(0, list)
	if err != nil {
		t.Fatalf("WriteRoot: %v", err)
	}

	rw := rereadWalker(w, alloc)
	got, err := rw.ReadRoot(block.ID(tag.Block), tag.Offset, listType)
	if err != nil {
		t.Fatalf("ReadRoot: %v", err)
	}
	first := got.Get("First").(*schema.Struct)
	firstNext := first.Get("Next").(*schema.Struct)
	second := got.Get("Second").(*schema.Struct)
	if firstNext != second {
		t.Errorf("First.Next and Second should decode to the identical struct, got %p and %p", firstNext, second)
	}
	if second.Get("Name") != "shared" {
		t.Errorf("Second.Name = %v, want shared", second.Get("Name"))
	}
}

var innerType = &schema.StructType{
	Name: "Inner",
	Fields: []schema.Field{
		{Name: "Tag", Kind: schema.Scalar, Size: 4, Block: -1},
	},
}

var outerType = func() *schema.StructType {
	innerType.Resolve()
	t := &schema.StructType{
		Name: "Outer",
		Fields: []schema.Field{
			{Name: "Head", Kind: schema.Scalar, Size: 4, Block: -1},
			{Name: "Child", Kind: schema.Ptr, Block: -1, Elem: innerType, FollowInline: true},
			{Name: "Tail", Kind: schema.Scalar, Size: 4, Block: -1},
		},
	}
	t.Resolve()
	return t
}()

func TestFollowInline(t *testing.T) {
	w, alloc := newTestWalker(true)
	child := schema.NewStruct(innerType)
	child.Set("Tag", uint64(99))
	outer := schema.NewStruct(outerType)
	outer.Set("Head", uint64(1))
	outer.Set("Child", child)
	outer.Set("Tail", uint64(2))

	tag, err := w.WriteRoot(0, outer)
	if err != nil {
		t.Fatalf("WriteRoot: %v", err)
	}

	rw := rereadWalker(w, alloc)
	got, err := rw.ReadRoot(block.ID(tag.Block), tag.Offset, outerType)
	if err != nil {
		t.Fatalf("ReadRoot: %v", err)
	}
	gotChild := got.Get("Child").(*schema.Struct)
	if gotChild.Get("Tag") != uint64(99) {
		t.Errorf("Child.Tag = %v, want 99", gotChild.Get("Tag"))
	}
	if got.Get("Tail") != uint64(2) {
		t.Errorf("Tail = %v, want 2", got.Get("Tail"))
	}
}

// weaponType models Testable scenario S5: iAttachments is a bitmask the
// Finalize hook derives from the attachment list, on both write (so the
// derived value is what actually gets serialized) and read (so a caller
// inspecting the struct sees the same derived value a live load would).
var weaponType = func() *schema.StructType {
	t := &schema.StructType{
		Name: "Weapon",
		Fields: []schema.Field{
			{Name: "AttachmentCount", Kind: schema.Scalar, Size: 4, Block: -1},
			{Name: "Attachments", Kind: schema.ScriptStringArray, Len: 3, Block: -1},
			{Name: "IAttachments", Kind: schema.Scalar, Size: 4, Block: -1},
		},
		Finalize: func(s *schema.Struct) error {
			names, _ := s.Values[1].([]string)
			var mask uint64
			for i, n := range names {
				if n != "" {
					mask |= 1 << uint(i)
				}
			}
			s.Values[2] = mask
			return nil
		},
	}
	t.Resolve()
	return t
}()

func TestFinalizeBackpatch(t *testing.T) {
	w, alloc := newTestWalker(true)
	weapon := schema.NewStruct(weaponType)
	weapon.Set("AttachmentCount", uint64(2))
	weapon.Set("Attachments", []string{"reflex", "", "suppressor"})
	weapon.Set("IAttachments", uint64(0)) // derived by Finalize before write

	tag, err := w.WriteRoot(0, weapon)
	if err != nil {
		t.Fatalf("WriteRoot: %v", err)
	}

	rw := rereadWalker(w, alloc)
	got, err := rw.ReadRoot(block.ID(tag.Block), tag.Offset, weaponType)
	if err != nil {
		t.Fatalf("ReadRoot: %v", err)
	}
	if want := uint64(0b101); got.Get("IAttachments") != want {
		t.Errorf("IAttachments = %v, want %v", got.Get("IAttachments"), want)
	}
}

// assetHostType models Testable scenario S6: a strong asset_ref that
// resolves against a zone loaded earlier via the process-global Registry.
var assetHostType = &schema.StructType{
	Name: "AssetHost",
	Fields: []schema.Field{
		{Name: "Material", Kind: schema.AssetRef, Block: -1, AssetKind: 3},
		{Name: "Decal", Kind: schema.AssetRef, Block: -1, AssetKind: 3, Weak: true},
	},
}

func TestAssetRefCrossZone(t *testing.T) {
	assetHostType.Resolve()

	olderZone := pool.New()
	olderZone.Add(&pool.Asset{Kind: 3, Name: "wood", Payload: "wood-payload"})
	registry := pool.NewRegistry()
	registry.Register(olderZone)

	alloc := block.New([]block.Def{{Name: "normal", Persistence: block.Normal, Align: 4}})
	alloc.Push(0)
	w := New(alloc, pointer.New(), scriptstring.New(), pool.New(), registry, Options{BlockBits: 8, Strict: true})

	host := schema.NewStruct(assetHostType)
	host.Set("Material", pool.Ref{Kind: 3, Name: "wood"})
	host.Set("Decal", pool.Ref{Kind: 3, Name: "missing"})

	tag, err := w.WriteRoot(0, host)
	if err != nil {
		t.Fatalf("WriteRoot: %v", err)
	}
	if len(w.Warnings) != 1 {
		t.Fatalf("want exactly one warning for the weak unresolved ref, got %v", w.Warnings)
	}

	rw := rereadWalker(w, alloc)
	got, err := rw.ReadRoot(block.ID(tag.Block), tag.Offset, assetHostType)
	if err != nil {
		t.Fatalf("ReadRoot: %v", err)
	}
	material := got.Get("Material").(*pool.Asset)
	if material.Name != "wood" {
		t.Errorf("Material.Name = %q, want wood", material.Name)
	}
	if got.Get("Decal") != nil {
		t.Errorf("Decal = %v, want nil (weak, unresolved)", got.Get("Decal"))
	}
}

var arrayHostType = func() *schema.StructType {
	t := &schema.StructType{
		Name: "ArrayHost",
		Fields: []schema.Field{
			{Name: "Count", Kind: schema.Scalar, Size: 4, Block: -1},
			{Name: "Items", Kind: schema.PtrArray, Block: -1, Elem: nodeType, LenField: "Count"},
		},
	}
	t.Resolve()
	return t
}()

func TestPtrArrayRoundTrip(t *testing.T) {
	w, alloc := newTestWalker(true)
	items := []*schema.Struct{
		newNode("one", 1, nil),
		newNode("two", 2, nil),
		newNode("three", 3, nil),
	}
	host := schema.NewStruct(arrayHostType)
	host.Set("Count", uint64(len(items)))
	host.Set("Items", items)

	tag, err := w.WriteRoot(0, host)
	if err != nil {
		t.Fatalf("WriteRoot: %v", err)
	}

	rw := rereadWalker(w, alloc)
	got, err := rw.ReadRoot(block.ID(tag.Block), tag.Offset, arrayHostType)
	if err != nil {
		t.Fatalf("ReadRoot: %v", err)
	}
	gotItems := got.Get("Items").([]*schema.Struct)
	if len(gotItems) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(gotItems))
	}
	for i, want := range []string{"one", "two", "three"} {
		if gotItems[i].Get("Name") != want {
			t.Errorf("Items[%d].Name = %v, want %v", i, gotItems[i].Get("Name"), want)
		}
	}
}

func TestAssetRefStrongMissingIsFatal(t *testing.T) {
	alloc := block.New([]block.Def{{Name: "normal", Persistence: block.Normal, Align: 4}})
	alloc.Push(0)
	w := New(alloc, pointer.New(), scriptstring.New(), pool.New(), pool.NewRegistry(), Options{BlockBits: 8, Strict: true})

	host := schema.NewStruct(assetHostType)
	host.Set("Material", pool.Ref{Kind: 3, Name: "nonexistent"})
	host.Set("Decal", pool.Ref{})

	if _, err := w.WriteRoot(0, host); err == nil {
		t.Fatalf("expected ErrMissingDependency for an unresolved strong asset_ref")
	}
}
