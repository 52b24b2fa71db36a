package loader

import (
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/schema"
	"github.com/sub20hz/OpenAssetTools/internal/walker"
)

// StringTableType is the root schema.StructType a loaded StringTable
// payload serializes through: its Name field is the ordinary leaf-string
// encoding every asset name uses, and its Payload field is a Custom field
// (§4.4 names exactly this shape of problem -- a payload the generic field
// vocabulary cannot express -- as the motivating use case) delegating to
// StringTableCodec for the cell grid itself.
var StringTableType = &schema.StructType{
	Name: "StringTable",
	Fields: []schema.Field{
		{Name: "Name", Kind: schema.String, Block: -1},
		{Name: "Payload", Kind: schema.Custom, CustomID: "stringtable", Size: 4, Block: -1},
	},
}

func init() { StringTableType.Resolve() }

// StringTableCodec implements walker.Custom for the stringtable asset kind:
// it places the cell grid (column/row counts, then each cell's hash and
// NUL-terminated text) as one contiguous region of its own and leaves only
// a 4-byte in-block offset inline, the same shape a String or Ptr field
// would use but self-managed since a grid of cells is not a single nested
// schema.Struct.
type StringTableCodec struct{}

func (StringTableCodec) Write(w *walker.Walker, b block.ID, v any) ([]byte, error) {
	t, ok := v.(*StringTable)
	if !ok {
		return nil, xerrors.Errorf("stringtable: custom field value is %T, want *StringTable", v)
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(t.Columns))
	binary.Write(&buf, binary.LittleEndian, uint32(t.Rows))
	for i, cell := range t.Cells {
		binary.Write(&buf, binary.LittleEndian, t.Hashes[i])
		buf.WriteString(cell)
		buf.WriteByte(0)
	}

	off, err := w.Alloc.Alloc(b, buf.Len(), 1)
	if err != nil {
		return nil, xerrors.Errorf("stringtable: allocating cell grid: %w", err)
	}
	ws := w.Alloc.Writer(b)
	if _, err := ws.Seek(int64(off), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := ws.Write(buf.Bytes()); err != nil {
		return nil, err
	}

	dst := make([]byte, 4)
	binary.LittleEndian.PutUint32(dst, off)
	return dst, nil
}

func (StringTableCodec) Read(w *walker.Walker, b block.ID, raw []byte) (any, error) {
	off := binary.LittleEndian.Uint32(raw)
	arena := w.Alloc.Arena(b)
	r := bytes.NewReader(arena[off:])

	var columns, rows uint32
	if err := binary.Read(r, binary.LittleEndian, &columns); err != nil {
		return nil, xerrors.Errorf("stringtable: reading column count: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, xerrors.Errorf("stringtable: reading row count: %w", err)
	}

	n := int(columns) * int(rows)
	t := &StringTable{Columns: int(columns), Rows: int(rows), Cells: make([]string, n), Hashes: make([]uint32, n)}
	for i := 0; i < n; i++ {
		if err := binary.Read(r, binary.LittleEndian, &t.Hashes[i]); err != nil {
			return nil, xerrors.Errorf("stringtable: reading cell %d hash: %w", i, err)
		}
		cell, err := r.ReadString(0)
		if err != nil {
			return nil, xerrors.Errorf("stringtable: reading cell %d text: %w", i, err)
		}
		t.Cells[i] = cell[:len(cell)-1]
	}
	return t, nil
}

var _ walker.Custom = StringTableCodec{}

// SchemaType returns the root StructType a StringTableLoader's payload
// serializes through, implementing SchemaLoader.
func (StringTableLoader) SchemaType() *schema.StructType { return StringTableType }
