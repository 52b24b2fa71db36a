// Package pointer implements the fast-file pointer/offset codec (C3): the
// translation between in-memory pointers and the tagged 32-bit stream
// offsets a fast file actually stores (§3, §4.3).
package pointer

import "golang.org/x/xerrors"

// Offset is the on-disk representation of a pointer: a block id packed into
// the high bits and a within-block offset in the low bits, plus one (see
// Encode). Two values are reserved.
type Offset uint32

const (
	// Null encodes a nil pointer.
	Null Offset = 0
	// Following encodes the sentinel meaning "the target immediately
	// follows this field in stream order"; only valid mid-(de)serialization.
	Following Offset = 0xFFFFFFFF
)

// Tagged is a decoded (block, offset) pair: the in-memory analogue of a
// resolved, non-null, non-FOLLOWING stream offset.
type Tagged struct {
	Block  int
	Offset uint32
}

var (
	// ErrUnresolvedOffset is returned when a tagged offset names a block
	// whose size/id is out of range for the active catalog.
	ErrUnresolvedOffset = xerrors.New("pointer: unresolved offset")
	// ErrCyclicFollowing is returned when a follow-inline placement would
	// recurse into a structure already being placed.
	ErrCyclicFollowing = xerrors.New("pointer: cyclic FOLLOWING")
)

// Encode packs a Tagged value into an Offset, given the number of high bits
// reserved for the block id. The packed value is biased by one, so block 0
// offset 0 does not encode as Null.
func Encode(blockBits uint, t Tagged) Offset {
	return Offset((uint32(t.Block)<<(32-blockBits) | (t.Offset & (1<<(32-blockBits) - 1))) + 1)
}

// Decode unpacks o into a Tagged value. ok is false if o is Null or
// Following; callers must check those first (IsNull/IsFollowing).
func Decode(blockBits uint, o Offset) (Tagged, bool) {
	if o == Null || o == Following {
		return Tagged{}, false
	}
	shift := 32 - blockBits
	mask := uint32(1)<<shift - 1
	v := uint32(o) - 1
	return Tagged{
		Block:  int(v >> shift),
		Offset: v & mask,
	}, true
}

// IsNull reports whether o encodes a null pointer.
func IsNull(o Offset) bool { return o == Null }

// IsFollowing reports whether o encodes the FOLLOWING sentinel.
func IsFollowing(o Offset) bool { return o == Following }

// PendingItem is a deferred subgraph serialization/deserialization,
// enqueued once a pointer field decides where its target lives and
// resolved after the enclosing substructure finishes (§4.4 ordering).
type PendingItem struct {
	Target    Tagged
	Serialize func() error
}

// Codec holds the bookkeeping shared by write and read: which (block,
// offset) slots have already been placed (Invariant C1: each target is
// (de)serialized exactly once), the FIFO of subgraphs still to visit, and a
// guard against FOLLOWING cycles.
type Codec struct {
	inserted  map[Tagged]bool
	pending   []PendingItem
	following map[any]bool
}

// New creates an empty Codec.
func New() *Codec {
	return &Codec{
		inserted:  make(map[Tagged]bool),
		following: make(map[any]bool),
	}
}

// Placed reports whether t has already been placed (allocated on write,
// deserialized on read) and marks it placed as a side effect. It returns
// false the first time t is seen.
func (c *Codec) Placed(t Tagged) (alreadyPlaced bool) {
	if c.inserted[t] {
		return true
	}
	c.inserted[t] = true
	return false
}

// Enqueue defers fn, to be run once the enclosing substructure's own
// fields have all been visited.
func (c *Codec) Enqueue(t Tagged, fn func() error) {
	c.pending = append(c.pending, PendingItem{Target: t, Serialize: fn})
}

// Drain runs every deferred item in FIFO order, including ones enqueued by
// earlier items, until none remain.
func (c *Codec) Drain() error {
	for len(c.pending) > 0 {
		item := c.pending[0]
		c.pending = c.pending[1:]
		if err := item.Serialize(); err != nil {
			return err
		}
	}
	return nil
}

// EnterFollowing marks key as currently being placed inline, failing with
// ErrCyclicFollowing if it is already on the stack.
func (c *Codec) EnterFollowing(key any) error {
	if c.following[key] {
		return ErrCyclicFollowing
	}
	c.following[key] = true
	return nil
}

// ExitFollowing clears key's in-progress mark.
func (c *Codec) ExitFollowing(key any) {
	delete(c.following, key)
}
