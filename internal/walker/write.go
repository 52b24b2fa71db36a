package walker

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/pointer"
	"github.com/sub20hz/OpenAssetTools/internal/pool"
	"github.com/sub20hz/OpenAssetTools/internal/schema"
)

func putOffset(dst []byte, o pointer.Offset) { binary.LittleEndian.PutUint32(dst, uint32(o)) }

func (w *Walker) destBlock(f *schema.Field) block.ID {
	if f.Block >= 0 {
		return block.ID(f.Block)
	}
	return w.Alloc.Current()
}

// WriteRoot places s at the top of b and drains every pointer target it
// (transitively) enqueues, implementing the "allocate, then descend,
// pointer targets resolved after the current substructure completes"
// ordering of §4.4.
func (w *Walker) WriteRoot(b block.ID, s *schema.Struct) (pointer.Tagged, error) {
	tag, err := w.place(b, s)
	if err != nil {
		return pointer.Tagged{}, err
	}
	if err := w.Codec.Drain(); err != nil {
		return pointer.Tagged{}, err
	}
	return tag, nil
}

// place reserves s's inline region in b (so its address is known to
// whatever field pointed at it) and, the first time s is seen, enqueues the
// body write. A struct pointed to twice is (de)serialized exactly once
// (Invariant C1, Testable property 4).
func (w *Walker) place(b block.ID, s *schema.Struct) (pointer.Tagged, error) {
	if tag, ok := w.placed[s]; ok {
		return tag, nil
	}
	off, err := w.Alloc.Alloc(b, schema.SizeOf(s.Type), s.Type.Align)
	if err != nil {
		return pointer.Tagged{}, err
	}
	tag := pointer.Tagged{Block: int(b), Offset: off}
	w.placed[s] = tag
	w.Codec.Placed(tag)
	w.Codec.Enqueue(tag, func() error { return w.writeBody(b, off, s) })
	return tag, nil
}

func (w *Walker) writeLeafBytes(b block.ID, content []byte) (pointer.Tagged, error) {
	off, err := w.Alloc.Alloc(b, len(content), 1)
	if err != nil {
		return pointer.Tagged{}, err
	}
	ws := w.Alloc.Writer(b)
	if _, err := ws.Seek(int64(off), io.SeekStart); err != nil {
		return pointer.Tagged{}, err
	}
	if _, err := ws.Write(content); err != nil {
		return pointer.Tagged{}, err
	}
	return pointer.Tagged{Block: int(b), Offset: off}, nil
}

// writeBody fills s's already-reserved region at (b, off): Finalize runs
// first so a hook that derives fields from the rest of the structure (§4.4
// Backpatching, Testable scenario S5) sees its final values written out.
func (w *Walker) writeBody(b block.ID, off uint32, s *schema.Struct) error {
	if s.Type.Finalize != nil {
		if err := s.Type.Finalize(s); err != nil {
			return err
		}
	}
	buf := make([]byte, schema.SizeOf(s.Type))
	var deferred []func() error
	if err := w.writeFields(b, s.Type, s, buf, &deferred); err != nil {
		return err
	}
	ws := w.Alloc.Writer(b)
	if _, err := ws.Seek(int64(off), io.SeekStart); err != nil {
		return err
	}
	if _, err := ws.Write(buf); err != nil {
		return err
	}
	for _, fn := range deferred {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// writeFields encodes every field of t into buf in declaration order.
// Fields with no substructure of their own (scalar/array/string/script
// strings/blob/asset_ref) are resolved immediately, and Union variants are
// encoded in place. Ptr and PtrArray targets are queued on the Codec, except
// follow-inline Ptr targets, which append to *deferred so their content is
// written only after buf itself is committed, preserving "allocate at the
// top, pointer targets resolved after" ordering even when a pointer field
// shares the enclosing struct's own block.
func (w *Walker) writeFields(b block.ID, t *schema.StructType, s *schema.Struct, buf []byte, deferred *[]func() error) error {
	pos := 0
	for i := range t.Fields {
		f := &t.Fields[i]
		width := schema.FieldWidth(f)
		dst := buf[pos : pos+width]
		pos += width

		switch f.Kind {
		case schema.Scalar:
			v, ok := s.Values[i].(uint64)
			if !ok {
				return xerrors.Errorf("walker: field %s: value is %T, want uint64", f.Name, s.Values[i])
			}
			putScalar(dst, f.Size, v)

		case schema.Array:
			bs, err := asBytes(s.Values[i], width)
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			copy(dst, bs)

		case schema.ScriptString:
			str, err := asString(s.Values[i])
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			id, err := w.Strings.Intern(str)
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			putScalar(dst, 2, uint64(id))

		case schema.ScriptStringArray:
			strs, err := asStrings(s.Values[i], f.Len)
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			for j, str := range strs {
				id, err := w.Strings.Intern(str)
				if err != nil {
					return xerrors.Errorf("walker: field %s[%d]: %w", f.Name, j, err)
				}
				putScalar(dst[j*2:j*2+2], 2, uint64(id))
			}

		case schema.String:
			str, err := asString(s.Values[i])
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			tag, err := w.writeLeafBytes(w.destBlock(f), append([]byte(str), 0))
			if err != nil {
				return err
			}
			putOffset(dst, pointer.Encode(w.opts.BlockBits, tag))

		case schema.Blob:
			if s.Values[i] == nil {
				putOffset(dst, pointer.Null)
				continue
			}
			length := t.LenFieldValue(s, f)
			bs, err := asBytes(s.Values[i], length)
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			tag, err := w.writeLeafBytes(w.destBlock(f), bs)
			if err != nil {
				return err
			}
			putOffset(dst, pointer.Encode(w.opts.BlockBits, tag))

		case schema.AssetRef:
			if err := w.writeAssetRef(f, s.Values[i], dst); err != nil {
				return err
			}

		case schema.Ptr:
			target, err := asPtr(s.Values[i])
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			if target == nil {
				putOffset(dst, pointer.Null)
				continue
			}
			if f.FollowInline {
				putOffset(dst, pointer.Following)
				db := w.destBlock(f)
				elem := f.Elem
				*deferred = append(*deferred, func() error {
					return w.writeFollowInline(db, elem, target)
				})
				continue
			}
			tag, err := w.place(w.destBlock(f), target)
			if err != nil {
				return err
			}
			putOffset(dst, pointer.Encode(w.opts.BlockBits, tag))

		case schema.PtrArray:
			if err := w.writePtrArray(f, t, s, dst); err != nil {
				return err
			}

		case schema.Union:
			tag := t.TagFieldValue(s, f)
			variant, ok := f.Variants[tag]
			if !ok {
				if err := w.warnOrFail(xerrors.Errorf("walker: field %s: tag %d: %w", f.Name, tag, ErrSchemaMismatch)); err != nil {
					return err
				}
				continue
			}
			val, err := asPtr(s.Values[i])
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			if val == nil {
				continue
			}
			sub := dst[:schema.SizeOf(variant)]
			if err := w.writeFields(b, variant, val, sub, deferred); err != nil {
				return err
			}

		case schema.Custom:
			c, ok := w.customs[f.CustomID]
			if !ok {
				return xerrors.Errorf("walker: field %s: no custom handler registered for %q", f.Name, f.CustomID)
			}
			raw, err := c.Write(w, w.destBlock(f), s.Values[i])
			if err != nil {
				return xerrors.Errorf("walker: field %s: %w", f.Name, err)
			}
			if len(raw) != f.Size {
				return xerrors.Errorf("walker: field %s: custom handler returned %d bytes, want %d", f.Name, len(raw), f.Size)
			}
			copy(dst, raw)
		}
	}
	return nil
}

// writeFollowInline places target immediately in block b at the current
// cursor, rather than enqueueing it, implementing the follow-inline
// placement policy of §4.3 step 2.
func (w *Walker) writeFollowInline(b block.ID, elem *schema.StructType, target *schema.Struct) error {
	if err := w.Codec.EnterFollowing(target); err != nil {
		return err
	}
	defer w.Codec.ExitFollowing(target)

	if tag, ok := w.placed[target]; ok {
		// Already placed elsewhere (shared pointer target): nothing to
		// write here, the FOLLOWING sentinel written at the field site
		// above already pointed a reader at the wrong place once this
		// target moves, so follow-inline targets must not be shared; this
		// can only happen if the schema itself reuses a follow-inline
		// pointer, which is a schema authoring error.
		return xerrors.Errorf("walker: follow-inline target already placed at block %d offset %d", tag.Block, tag.Offset)
	}
	off, err := w.Alloc.Alloc(b, schema.SizeOf(elem), elem.Align)
	if err != nil {
		return err
	}
	tag := pointer.Tagged{Block: int(b), Offset: off}
	w.placed[target] = tag
	w.Codec.Placed(tag)
	return w.writeBody(b, off, target)
}

func (w *Walker) writeAssetRef(f *schema.Field, v any, dst []byte) error {
	if v == nil {
		putOffset(dst, pointer.Null)
		return nil
	}
	ref, ok := v.(pool.Ref)
	if !ok {
		return xerrors.Errorf("walker: field %s: value is %T, want pool.Ref", f.Name, v)
	}
	if ref.Name == "" {
		putOffset(dst, pointer.Null)
		return nil
	}
	asset, found := w.Pool.Find(f.AssetKind, ref.Name)
	if !found {
		asset, found = w.Registry.Find(f.AssetKind, ref.Name)
	}
	if !found {
		err := xerrors.Errorf("walker: field %s: %w: kind %d name %q", f.Name, ErrMissingDependency, f.AssetKind, ref.Name)
		if !f.Weak {
			return err
		}
		w.Warnings = append(w.Warnings, err)
		putOffset(dst, pointer.Null)
		return nil
	}
	tag, err := w.writeLeafBytes(w.destBlock(f), append([]byte(asset.Name), 0))
	if err != nil {
		return err
	}
	putOffset(dst, pointer.Encode(w.opts.BlockBits, tag))
	return nil
}

func (w *Walker) writePtrArray(f *schema.Field, t *schema.StructType, s *schema.Struct, dst []byte) error {
	idx := fieldIndexOf(t, f)
	targets, err := asPtrSlice(s.Values[idx])
	if err != nil {
		return xerrors.Errorf("walker: field %s: %w", f.Name, err)
	}
	if len(targets) == 0 {
		putOffset(dst, pointer.Null)
		return nil
	}
	elemSize := schema.SizeOf(f.Elem)
	db := w.destBlock(f)
	off, err := w.Alloc.Alloc(db, elemSize*len(targets), f.Elem.Align)
	if err != nil {
		return err
	}
	tag := pointer.Tagged{Block: int(db), Offset: off}
	w.Codec.Placed(tag)
	for i, elem := range targets {
		w.placed[elem] = pointer.Tagged{Block: int(db), Offset: off + uint32(i*elemSize)}
	}
	w.Codec.Enqueue(tag, func() error {
		for i, elem := range targets {
			if err := w.writeBody(db, off+uint32(i*elemSize), elem); err != nil {
				return err
			}
		}
		return nil
	})
	putOffset(dst, pointer.Encode(w.opts.BlockBits, tag))
	return nil
}

func fieldIndexOf(t *schema.StructType, f *schema.Field) int {
	for i := range t.Fields {
		if &t.Fields[i] == f {
			return i
		}
	}
	return -1
}
