// Package zone implements the Zone type and the zone-build/zone-load
// drivers (C7): composing the zone-definition parser, asset-loader
// registry, graph walker, and fast-file container mechanics into the two
// control-flow pipelines §4.7 describes.
package zone

import (
	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/archive"
	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/loader"
	"github.com/sub20hz/OpenAssetTools/internal/pointer"
	"github.com/sub20hz/OpenAssetTools/internal/pool"
	"github.com/sub20hz/OpenAssetTools/internal/scriptstring"
	"github.com/sub20hz/OpenAssetTools/internal/walker"
	"github.com/sub20hz/OpenAssetTools/oat"
)

// ErrUnknownGame is fatal per §4.7 build-path step 2: the zone definition's
// `game` value did not resolve to any known generation.
var ErrUnknownGame = xerrors.New("zone: unknown game")

// ErrUnknownAssetKind is returned when a zone definition names an
// asset-kind identifier the caller's KindOf function does not recognize.
var ErrUnknownAssetKind = xerrors.New("zone: unknown asset kind")

// ErrNoLoader is returned when an asset declares a kind with no registered
// Loader.
var ErrNoLoader = xerrors.New("zone: no loader registered for kind")

// Zone is a unit of loading (§3 DATA MODEL): a name, generation tag,
// script-string table, asset pool, memory arena (the block allocator), and
// the asset archives it has acquired a reference to.
type Zone struct {
	Name       string
	Generation oat.Generation

	scriptStrs *scriptstring.Table
	assets     *pool.Pool
	registry   *pool.Registry

	Alloc  *block.Allocator
	Codec  *pointer.Codec
	Walker *walker.Walker

	archivePaths []string
	archives     *archive.Repository

	// Index is the asset-declaration-order list written into the fast
	// file's asset-list preamble (§6.1); populated during Build, consumed
	// by fastfile.WriteZone.
	Index []indexEntry
}

type indexEntry struct {
	Kind   int
	Name   string
	Offset uint32
}

var _ loader.Context = (*Zone)(nil)

func (z *Zone) Pool() *pool.Pool             { return z.assets }
func (z *Zone) Registry() *pool.Registry     { return z.registry }
func (z *Zone) Strings() *scriptstring.Table { return z.scriptStrs }

// Close releases every asset archive this zone acquired a reference to.
// Invariant F2 (an asset never holds a pointer into an unloaded zone) is
// the caller's responsibility: Close must only run after the zone itself
// is no longer reachable.
func (z *Zone) Close() {
	if z.archives == nil {
		return
	}
	for _, path := range z.archivePaths {
		z.archives.Release(path)
	}
}
