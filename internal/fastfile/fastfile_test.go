package fastfile

import (
	"bytes"
	"testing"

	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/pointer"
	"github.com/sub20hz/OpenAssetTools/internal/pool"
	"github.com/sub20hz/OpenAssetTools/internal/schema"
	"github.com/sub20hz/OpenAssetTools/internal/scriptstring"
	"github.com/sub20hz/OpenAssetTools/internal/walker"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader("IWff0100", 5, true)
	var buf bytes.Buffer
	if err := WriteHeader(&buf, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	got, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got.MagicString() != "IWff0100" || got.Version != 5 || !got.Encrypted() {
		t.Fatalf("got %+v", got)
	}
}

var assetType = func() *schema.StructType {
	t := &schema.StructType{
		Name: "Asset",
		Fields: []schema.Field{
			{Name: "Name", Kind: schema.String, Block: -1},
			{Name: "Tag", Kind: schema.ScriptString, Block: -1},
		},
	}
	t.Resolve()
	return t
}()

// TestZoneStreamRoundTrip exercises WriteZone/ReadZone end to end: block
// contents, the script-string table, and the asset index all survive a trip
// through a plain byte buffer standing in for the chunk stream.
func TestZoneStreamRoundTrip(t *testing.T) {
	alloc := block.New([]block.Def{{Name: "normal", Persistence: block.Normal, Align: 4}})
	alloc.Push(0)
	strs := scriptstring.New()
	w := walker.New(alloc, pointer.New(), strs, pool.New(), pool.NewRegistry(), walker.Options{BlockBits: 8, Strict: true})

	root := schema.NewStruct(assetType)
	root.Set("Name", "$white")
	root.Set("Tag", "default")
	tag, err := w.WriteRoot(0, root)
	if err != nil {
		t.Fatalf("WriteRoot: %v", err)
	}

	index := []AssetIndexEntry{{Kind: 7, Name: "$white", Offset: uint32(pointer.Encode(8, tag))}}

	var buf bytes.Buffer
	if err := WriteZone(&buf, alloc, strs, index); err != nil {
		t.Fatalf("WriteZone: %v", err)
	}

	readAlloc := block.New([]block.Def{{Name: "normal", Persistence: block.Normal, Align: 4}})
	gotStrs, gotIndex, err := ReadZone(&buf, readAlloc)
	if err != nil {
		t.Fatalf("ReadZone: %v", err)
	}
	if len(gotIndex) != 1 || gotIndex[0] != index[0] {
		t.Fatalf("got index %+v, want %+v", gotIndex, index)
	}

	rw := walker.New(readAlloc, pointer.New(), gotStrs, pool.New(), pool.NewRegistry(), walker.Options{BlockBits: 8, Strict: true})
	got, err := rw.ReadRoot(block.ID(tag.Block), tag.Offset, assetType)
	if err != nil {
		t.Fatalf("ReadRoot: %v", err)
	}
	if got.Get("Name") != "$white" {
		t.Errorf("Name = %v, want $white", got.Get("Name"))
	}
	if got.Get("Tag") != "default" {
		t.Errorf("Tag = %v, want default", got.Get("Tag"))
	}
}

// TestStreamBlockRoundTrip confirms a Stream block's contents travel through
// WriteStreamBlocks/ReadStreamBlocks, not WriteZone/ReadZone, and that a
// non-Stream block in the same catalog is unaffected by the split.
func TestStreamBlockRoundTrip(t *testing.T) {
	defs := []block.Def{
		{Name: "normal", Persistence: block.Normal, Align: 4},
		{Name: "stream_runtime", Persistence: block.Normal, Stream: true, Align: 4},
	}
	alloc := block.New(defs)
	alloc.Push(0)

	root := schema.NewStruct(assetType)
	root.Set("Name", "$white")
	root.Set("Tag", "default")
	strs := scriptstring.New()
	w := walker.New(alloc, pointer.New(), strs, pool.New(), pool.NewRegistry(), walker.Options{BlockBits: 8, Strict: true})
	if _, err := w.WriteRoot(0, root); err != nil {
		t.Fatalf("WriteRoot: %v", err)
	}

	streamBytes := []byte("raw mip data, never compressed")
	sw := alloc.Writer(1)
	if _, err := sw.Write(streamBytes); err != nil {
		t.Fatalf("writing stream block: %v", err)
	}
	if _, err := alloc.Alloc(1, len(streamBytes), 1); err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	var zoneBuf, streamBuf bytes.Buffer
	if err := WriteZone(&zoneBuf, alloc, strs, nil); err != nil {
		t.Fatalf("WriteZone: %v", err)
	}
	if err := WriteStreamBlocks(&streamBuf, alloc); err != nil {
		t.Fatalf("WriteStreamBlocks: %v", err)
	}
	if bytes.Contains(zoneBuf.Bytes(), streamBytes) {
		t.Fatalf("stream block contents leaked into the zone stream section")
	}

	readAlloc := block.New(defs)
	if _, _, err := ReadZone(&zoneBuf, readAlloc); err != nil {
		t.Fatalf("ReadZone: %v", err)
	}
	for _, b := range readAlloc.Arena(1) {
		if b != 0 {
			t.Fatalf("stream block arena populated by ReadZone before ReadStreamBlocks ran: %v", readAlloc.Arena(1))
		}
	}
	if err := ReadStreamBlocks(&streamBuf, readAlloc); err != nil {
		t.Fatalf("ReadStreamBlocks: %v", err)
	}
	if got := readAlloc.Arena(1); !bytes.Equal(got, streamBytes) {
		t.Fatalf("stream block arena = %q, want %q", got, streamBytes)
	}
}
