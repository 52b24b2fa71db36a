// Package block implements the fast-file block allocator (C2): a zone's
// storage is partitioned into a fixed, generation-declared set of named
// blocks, each with its own bump-allocation cursor and alignment policy.
package block

import (
	"io"

	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"
)

// Persistence orders block lifetimes. A pointer may only reference a block
// of equal or greater persistence than the block it lives in (Invariant A2).
type Persistence int

const (
	// Temp data is discarded after load.
	Temp Persistence = iota
	// Normal data persists for the lifetime of the zone.
	Normal
	// Runtime data is zero-initialized at load time and never serialized.
	Runtime
)

func (p Persistence) String() string {
	switch p {
	case Temp:
		return "temp"
	case Normal:
		return "normal"
	case Runtime:
		return "runtime"
	default:
		return "unknown"
	}
}

// ID identifies one block within a generation's fixed catalog. It doubles
// as the high-bits tag of a serialized stream offset (§3).
type ID int

// Def describes one block of a generation's catalog.
type Def struct {
	Name        string
	Persistence Persistence
	// Stream marks a stream variant: data kept memory-mapped rather than
	// copied into the arena. Orthogonal to Persistence.
	Stream bool
	// Align is the default alignment (a power of two) used when no
	// explicit alignment is given to Alloc/Align.
	Align int
	// MaxSize bounds the block, 0 meaning unbounded. Only meaningful on
	// the write side; exceeding it is ErrBlockOverflow.
	MaxSize uint32
}

var (
	// ErrBlockOverflow is returned when an allocation would exceed a
	// block's configured maximum size.
	ErrBlockOverflow = xerrors.New("block: overflow")
	// ErrMisalignedAccess is returned when an alignment request is not a
	// power of two.
	ErrMisalignedAccess = xerrors.New("block: misaligned access")
)

// Allocator tracks the bump cursor of every block in a generation's
// catalog, plus the stack of "current blocks" used when a field's schema
// does not name an explicit destination block.
type Allocator struct {
	defs    []Def
	cursors []uint32
	stack   []ID

	// bufs backs the write path: one growable in-memory buffer per block,
	// appended to as the graph walker serializes fields into it.
	bufs []*writerseeker.WriterSeeker

	// arenas backs the read path: one fixed-size zero-initialized byte
	// slice per block, sized from the on-disk block-size table.
	arenas [][]byte
}

// New creates an Allocator for the given block catalog.
func New(defs []Def) *Allocator {
	a := &Allocator{
		defs:    defs,
		cursors: make([]uint32, len(defs)),
		bufs:    make([]*writerseeker.WriterSeeker, len(defs)),
	}
	for i := range a.bufs {
		a.bufs[i] = &writerseeker.WriterSeeker{}
	}
	return a
}

// Def returns the catalog entry for b.
func (a *Allocator) Def(b ID) Def { return a.defs[b] }

// NumBlocks returns the number of blocks in the catalog this Allocator was
// built from.
func (a *Allocator) NumBlocks() int { return len(a.defs) }

// Push makes b the current block; Pop restores the previous one. The
// topmost entry is the default destination for fields that do not name a
// block explicitly.
func (a *Allocator) Push(b ID) { a.stack = append(a.stack, b) }

func (a *Allocator) Pop() {
	if len(a.stack) == 0 {
		return
	}
	a.stack = a.stack[:len(a.stack)-1]
}

// Current returns the topmost block on the stack, or -1 if the stack is
// empty.
func (a *Allocator) Current() ID {
	if len(a.stack) == 0 {
		return -1
	}
	return a.stack[len(a.stack)-1]
}

func alignUp(off uint32, align int) (uint32, error) {
	if align <= 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return 0, xerrors.Errorf("alignment %d is not a power of two: %w", align, ErrMisalignedAccess)
	}
	mask := uint32(align - 1)
	return (off + mask) &^ mask, nil
}

// Align advances b's cursor to the next multiple of align without
// allocating, returning the new cursor. align == 0 uses the block's default.
func (a *Allocator) Align(b ID, align int) (uint32, error) {
	if align == 0 {
		align = a.defs[b].Align
	}
	aligned, err := alignUp(a.cursors[b], align)
	if err != nil {
		return 0, err
	}
	a.cursors[b] = aligned
	return aligned, nil
}

// Alloc aligns b's cursor, then bumps it by size, returning the
// pre-bump (aligned) offset. Invariant B1: the cursor is strictly
// monotonic across calls for a given block.
func (a *Allocator) Alloc(b ID, size int, align int) (uint32, error) {
	off, err := a.Align(b, align)
	if err != nil {
		return 0, err
	}
	next := off + uint32(size)
	if next < off {
		return 0, xerrors.Errorf("block %q: allocation of %d bytes overflows: %w", a.defs[b].Name, size, ErrBlockOverflow)
	}
	if max := a.defs[b].MaxSize; max != 0 && next > max {
		return 0, xerrors.Errorf("block %q: allocation of %d bytes at %d exceeds max size %d: %w", a.defs[b].Name, size, off, max, ErrBlockOverflow)
	}
	a.cursors[b] = next
	return off, nil
}

// Cursor returns b's current bump offset.
func (a *Allocator) Cursor(b ID) uint32 { return a.cursors[b] }

// SetCursor forces b's bump offset to v. The graph walker uses this on the
// read path to keep a block's cursor mirroring the write-side allocation
// sequence (Invariant B1) around reads that jump to an already-resolved
// tagged offset elsewhere in the same block.
func (a *Allocator) SetCursor(b ID, v uint32) { a.cursors[b] = v }

// Writer returns the write-side backing buffer for b as a WriteSeeker: the
// walker seeks to the offset an Alloc/Align call returned and writes a
// field's bytes there, rather than appending, so that sibling fields
// reserved ahead of time (pointer targets enqueued for later) end up at
// the right place regardless of the order their content is actually
// written in. Seeking past the current length zero-fills the gap, which is
// exactly the semantics a bump allocator needs. Runtime blocks are never
// serialized, so callers must not write to one (§4.2).
func (a *Allocator) Writer(b ID) io.WriteSeeker {
	if a.defs[b].Persistence == Runtime {
		panic("block: attempted write into a runtime block")
	}
	return a.bufs[b]
}

// Bytes returns the write-side contents of b, truncated or zero-extended
// to exactly its current cursor position.
func (a *Allocator) Bytes(b ID) []byte {
	out, _ := io.ReadAll(a.bufs[b].BytesReader())
	cur := int(a.cursors[b])
	if len(out) < cur {
		out = append(out, make([]byte, cur-len(out))...)
	}
	return out[:cur]
}

// AllocArenas prepares the read-side backing storage once block sizes are
// known from the on-disk zone header. Runtime blocks are zero-initialized
// and never read from the stream.
func (a *Allocator) AllocArenas(sizes []uint32) {
	a.arenas = make([][]byte, len(a.defs))
	for i, sz := range sizes {
		a.arenas[i] = make([]byte, sz)
	}
}

// Arena returns the read-side backing storage for b.
func (a *Allocator) Arena(b ID) []byte { return a.arenas[b] }
