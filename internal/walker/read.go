package walker

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/pointer"
	"github.com/sub20hz/OpenAssetTools/internal/schema"
)

func getOffset(src []byte) pointer.Offset { return pointer.Offset(binary.LittleEndian.Uint32(src)) }

// ReadRoot decodes the struct of type t living at (b, off), mirroring
// whatever WriteRoot produced there.
func (w *Walker) ReadRoot(b block.ID, off uint32, t *schema.StructType) (*schema.Struct, error) {
	return w.resolve(pointer.Tagged{Block: int(b), Offset: off}, t)
}

// resolve returns the already-decoded Struct for tag if one exists
// (Invariant C1/Testable property 4: two fields pointing at the same
// target share one decoded value), otherwise decodes it.
func (w *Walker) resolve(tag pointer.Tagged, t *schema.StructType) (*schema.Struct, error) {
	if s, ok := w.resolved[tag]; ok {
		return s, nil
	}
	s := schema.NewStruct(t)
	w.resolved[tag] = s
	if err := w.readBody(block.ID(tag.Block), tag.Offset, t, s); err != nil {
		return nil, err
	}
	return s, nil
}

// readBody decodes t's fields from (b, off), then positions b's cursor
// immediately past this struct, mirroring the write side's convention that
// a FOLLOWING target always sits right after the struct that named it.
func (w *Walker) readBody(b block.ID, off uint32, t *schema.StructType, s *schema.Struct) error {
	size := schema.SizeOf(t)
	arena := w.Alloc.Arena(b)
	if int(off)+size > len(arena) {
		return xerrors.Errorf("walker: struct %s at block %d offset %d: %w", t.Name, b, off, pointer.ErrUnresolvedOffset)
	}
	buf := arena[off : off+uint32(size)]
	w.Alloc.SetCursor(b, off+uint32(size))
	if err := w.readFields(b, t, s, buf); err != nil {
		return err
	}
	if t.Finalize != nil {
		if err := t.Finalize(s); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) readFields(b block.ID, t *schema.StructType, s *schema.Struct, buf []byte) error {
	pos := 0
	for i := range t.Fields {
		f := &t.Fields[i]
		width := schema.FieldWidth(f)
		src := buf[pos : pos+width]
		pos += width

		switch f.Kind {
		case schema.Scalar:
			s.Values[i] = getScalar(src, f.Size)

		case schema.Array:
			cp := make([]byte, width)
			copy(cp, src)
			s.Values[i] = cp

		case schema.ScriptString:
			id := uint16(getScalar(src, 2))
			if int(id) >= w.Strings.Count() {
				return xerrors.Errorf("walker: field %s: script string id %d out of range", f.Name, id)
			}
			s.Values[i] = w.Strings.String(id)

		case schema.ScriptStringArray:
			out := make([]string, f.Len)
			for j := 0; j < f.Len; j++ {
				id := uint16(getScalar(src[j*2:j*2+2], 2))
				if int(id) >= w.Strings.Count() {
					return xerrors.Errorf("walker: field %s[%d]: script string id %d out of range", f.Name, j, id)
				}
				out[j] = w.Strings.String(id)
			}
			s.Values[i] = out

		case schema.String:
			str, err := w.readLeafString(b, w.destBlock(f), getOffset(src))
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			s.Values[i] = str

		case schema.Blob:
			length := t.LenFieldValue(s, f)
			raw, err := w.readLeafBlob(b, w.destBlock(f), getOffset(src), length)
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			s.Values[i] = raw

		case schema.AssetRef:
			v, err := w.readAssetRef(b, f, getOffset(src))
			if err != nil {
				return err
			}
			s.Values[i] = v

		case schema.Ptr:
			v, err := w.readPtr(b, f, getOffset(src))
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			s.Values[i] = v

		case schema.PtrArray:
			v, err := w.readPtrArray(b, t, s, f, getOffset(src))
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			s.Values[i] = v

		case schema.Union:
			tag := t.TagFieldValue(s, f)
			variant, ok := f.Variants[tag]
			if !ok {
				if err := w.warnOrFail(xerrors.Errorf("walker: field %s: tag %d: %w", f.Name, tag, ErrSchemaMismatch)); err != nil {
					return err
				}
				continue
			}
			val := schema.NewStruct(variant)
			if err := w.readFields(b, variant, val, src[:schema.SizeOf(variant)]); err != nil {
				return err
			}
			if variant.Finalize != nil {
				if err := variant.Finalize(val); err != nil {
					return err
				}
			}
			s.Values[i] = val

		case schema.Custom:
			c, ok := w.customs[f.CustomID]
			if !ok {
				return xerrors.Errorf("walker: field %s: no custom handler registered for %q", f.Name, f.CustomID)
			}
			v, err := c.Read(w, w.destBlock(f), src)
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			s.Values[i] = v
		}
	}
	return nil
}

// readLeafString scans a NUL-terminated byte run, resolving Null to "" and
// FOLLOWING to whatever currently sits at db's cursor.
func (w *Walker) readLeafString(callerBlock, db block.ID, o pointer.Offset) (string, error) {
	switch {
	case pointer.IsNull(o):
		return "", nil
	case pointer.IsFollowing(o):
		off := w.Alloc.Cursor(db)
		arena := w.Alloc.Arena(db)
		end := bytes.IndexByte(arena[off:], 0)
		if end < 0 {
			return "", xerrors.Errorf("unterminated string at block %d offset %d", db, off)
		}
		w.Alloc.SetCursor(db, off+uint32(end)+1)
		return string(arena[off : off+uint32(end)]), nil
	default:
		tag, _ := pointer.Decode(w.opts.BlockBits, o)
		arena := w.Alloc.Arena(block.ID(tag.Block))
		end := bytes.IndexByte(arena[tag.Offset:], 0)
		if end < 0 {
			return "", xerrors.Errorf("unterminated string at block %d offset %d", tag.Block, tag.Offset)
		}
		return string(arena[tag.Offset : tag.Offset+uint32(end)]), nil
	}
}

func (w *Walker) readLeafBlob(callerBlock, db block.ID, o pointer.Offset, length int) ([]byte, error) {
	switch {
	case pointer.IsNull(o):
		return nil, nil
	case pointer.IsFollowing(o):
		off := w.Alloc.Cursor(db)
		arena := w.Alloc.Arena(db)
		if int(off)+length > len(arena) {
			return nil, xerrors.Errorf("blob at block %d offset %d exceeds arena", db, off)
		}
		out := append([]byte(nil), arena[off:off+uint32(length)]...)
		w.Alloc.SetCursor(db, off+uint32(length))
		return out, nil
	default:
		tag, _ := pointer.Decode(w.opts.BlockBits, o)
		arena := w.Alloc.Arena(block.ID(tag.Block))
		if int(tag.Offset)+length > len(arena) {
			return nil, xerrors.Errorf("blob at block %d offset %d exceeds arena", tag.Block, tag.Offset)
		}
		return append([]byte(nil), arena[tag.Offset:tag.Offset+uint32(length)]...), nil
	}
}

func (w *Walker) readAssetRef(b block.ID, f *schema.Field, o pointer.Offset) (any, error) {
	if pointer.IsNull(o) {
		return nil, nil
	}
	name, err := w.readLeafString(b, w.destBlock(f), o)
	if err != nil {
		return nil, xerrors.Errorf("walker: field %s: %w", f.Name, err)
	}
	asset, found := w.Pool.Find(f.AssetKind, name)
	if !found {
		asset, found = w.Registry.Find(f.AssetKind, name)
	}
	if !found {
		err := xerrors.Errorf("walker: field %s: %w: kind %d name %q", f.Name, ErrMissingDependency, f.AssetKind, name)
		if !f.Weak {
			return nil, err
		}
		w.Warnings = append(w.Warnings, err)
		return nil, nil
	}
	return asset, nil
}

func (w *Walker) readPtr(callerBlock block.ID, f *schema.Field, o pointer.Offset) (*schema.Struct, error) {
	if pointer.IsNull(o) {
		return nil, nil
	}
	db := w.destBlock(f)
	if pointer.IsFollowing(o) {
		off := w.Alloc.Cursor(db)
		return w.resolve(pointer.Tagged{Block: int(db), Offset: off}, f.Elem)
	}
	tag, _ := pointer.Decode(w.opts.BlockBits, o)
	save := w.Alloc.Cursor(callerBlock)
	v, err := w.resolve(tag, f.Elem)
	w.Alloc.SetCursor(callerBlock, save)
	return v, err
}

func (w *Walker) readPtrArray(callerBlock block.ID, t *schema.StructType, s *schema.Struct, f *schema.Field, o pointer.Offset) ([]*schema.Struct, error) {
	if pointer.IsNull(o) {
		return nil, nil
	}
	n := t.LenFieldValue(s, f)
	if n <= 0 {
		return nil, nil
	}
	elemSize := schema.SizeOf(f.Elem)
	db := w.destBlock(f)

	var base pointer.Tagged
	restore := func() {}
	if pointer.IsFollowing(o) {
		base = pointer.Tagged{Block: int(db), Offset: w.Alloc.Cursor(db)}
		w.Alloc.SetCursor(db, base.Offset+uint32(elemSize*n))
	} else {
		base, _ = pointer.Decode(w.opts.BlockBits, o)
		save := w.Alloc.Cursor(callerBlock)
		restore = func() { w.Alloc.SetCursor(callerBlock, save) }
	}

	out := make([]*schema.Struct, n)
	for i := 0; i < n; i++ {
		elem, err := w.resolve(pointer.Tagged{Block: base.Block, Offset: base.Offset + uint32(i*elemSize)}, f.Elem)
		if err != nil {
			restore()
			return nil, err
		}
		out[i] = elem
	}
	restore()
	return out, nil
}
