// Package walker implements the fast-file graph walker (C4): it drives the
// block allocator and pointer codec to serialize and deserialize a typed
// asset graph under a data-driven schema.StructType, in the field order and
// with the pointer-placement policies described in §4.4.
package walker

import (
	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/pointer"
	"github.com/sub20hz/OpenAssetTools/internal/pool"
	"github.com/sub20hz/OpenAssetTools/internal/schema"
	"github.com/sub20hz/OpenAssetTools/internal/scriptstring"
)

var (
	// ErrMissingDependency mirrors §7: a strong asset_ref that did not
	// resolve against the pool.
	ErrMissingDependency = xerrors.New("walker: missing dependency")
	// ErrSchemaMismatch is returned on strict reads when a decoded value
	// falls outside its declared range (e.g. an out-of-range union tag).
	ErrSchemaMismatch = xerrors.New("walker: schema mismatch")
)

// Custom is the extension point for schema.Custom fields: hand-written
// handlers for payload shapes the generic walker cannot express (§4.4
// lists image-loaddef payloads as the motivating example).
type Custom interface {
	Write(w *Walker, blockID block.ID, v any) ([]byte, error)
	Read(w *Walker, blockID block.ID, raw []byte) (any, error)
}

// Strict, when true, turns a SchemaMismatch into a fatal read error rather
// than a buffered warning (§7).
type Options struct {
	BlockBits uint
	Strict    bool
}

// Walker holds everything a single zone's (de)serialization pass shares:
// the block allocator and pointer codec it drives, the zone's
// script-string table and asset pool, and the registered asset_ref/custom
// resolvers.
type Walker struct {
	Alloc    *block.Allocator
	Codec    *pointer.Codec
	Strings  *scriptstring.Table
	Pool     *pool.Pool
	Registry *pool.Registry

	opts Options

	customs map[string]Custom

	// placed memoizes write-side struct identity: the same *schema.Struct
	// pointed to by two fields must be serialized once and referenced
	// twice (Testable property 4, Invariant C1).
	placed map[*schema.Struct]pointer.Tagged

	// resolved memoizes read-side (block, offset) identity the same way,
	// in the opposite direction.
	resolved map[pointer.Tagged]*schema.Struct

	// Warnings accumulates non-fatal findings, emitted on completion per
	// §7's propagation policy: SchemaMismatch findings of a non-Strict read,
	// and unresolved weak asset_ref (MissingDependency) findings of a read
	// or a write in either mode.
	Warnings []error
}

// New creates a Walker over the given allocator, pointer codec, zone
// script-string table and asset pool.
func New(alloc *block.Allocator, codec *pointer.Codec, strings *scriptstring.Table, p *pool.Pool, registry *pool.Registry, opts Options) *Walker {
	return &Walker{
		Alloc:    alloc,
		Codec:    codec,
		Strings:  strings,
		Pool:     p,
		Registry: registry,
		opts:     opts,
		customs:  make(map[string]Custom),
		placed:   make(map[*schema.Struct]pointer.Tagged),
		resolved: make(map[pointer.Tagged]*schema.Struct),
	}
}

// RegisterCustom binds a Custom field id to its handler.
func (w *Walker) RegisterCustom(id string, c Custom) {
	w.customs[id] = c
}

func (w *Walker) warnOrFail(err error) error {
	if w.opts.Strict {
		return err
	}
	w.Warnings = append(w.Warnings, err)
	return nil
}
