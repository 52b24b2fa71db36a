// Package loader implements the asset-loader plugin contract of §6.2: the
// small interface each per-asset-kind source-format parser (CSV string
// tables, info strings, menu DSL, GDT) satisfies so the zone driver (C7)
// can dispatch to it without knowing the asset kind ahead of time.
package loader

import (
	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/pool"
	"github.com/sub20hz/OpenAssetTools/internal/schema"
	"github.com/sub20hz/OpenAssetTools/internal/scriptstring"
)

// ErrUnsupported is returned by a Loader method whose CanLoadFromX
// predicate is false; the zone driver should not have called it.
var ErrUnsupported = xerrors.New("loader: unsupported load path")

// GDT is a minimal game-data-table: a flat map of entry name to its
// key/value fields, the source format §6.2's load_from_gdt reads from.
type GDT struct {
	Entries map[string]map[string]string
}

// Query returns the fields of a named GDT entry.
func (g *GDT) Query(name string) (map[string]string, bool) {
	if g == nil {
		return nil, false
	}
	fields, ok := g.Entries[name]
	return fields, ok
}

// Context is the slice of zone state a loader needs: the zone's own pool
// (to register into) and script-string table (to intern referenced text),
// plus the process-global registry for load_from_global_pools.
type Context interface {
	Pool() *pool.Pool
	Registry() *pool.Registry
	Strings() *scriptstring.Table
}

// Manager is the asset-loader-facing API for registering a freshly loaded
// asset and for recursively pulling in a dependency, mirroring
// manager.add_asset/manager.load_dependency in §6.2.
type Manager interface {
	AddAsset(a *pool.Asset) error
	LoadDependency(kind int, name string) (*pool.Asset, error)
}

// Result is what a successful load_from_gdt/load_from_raw call produces:
// the payload plus the bookkeeping the pool needs to track dependencies and
// which script strings the payload references.
type Result struct {
	Payload           any
	Dependencies      []pool.Ref
	UsedScriptStrings []uint16
}

// Loader is the asset-loader plugin contract of §6.2.
type Loader interface {
	HandledKind() int
	CreateEmpty(name string) any

	CanLoadFromGDT() bool
	LoadFromGDT(name string, gdt *GDT, mgr Manager, ctx Context) (Result, error)

	CanLoadFromRaw() bool
	LoadFromRaw(name string, searchPath []string, mgr Manager, ctx Context) (Result, error)

	LoadFromGlobalPools(name string) (*pool.Asset, bool)

	FinalizeForZone(ctx Context) error
}

// SchemaLoader is implemented by a Loader whose payload round-trips through
// the graph walker under a fixed root schema.StructType -- the kinds this
// module wires all the way through the container pipeline (currently just
// stringtable, for Testable scenario S1). A Loader that does not implement
// this is still usable for pool registration and cross-zone resolution,
// but its payload is not itself part of the walked, serialized graph,
// reflecting the per-kind asset catalog non-goal: most real kinds' field
// tables and walker wiring are out of this module's scope.
type SchemaLoader interface {
	Loader
	SchemaType() *schema.StructType
}

// Registry is the per-generation static table of (kind -> Loader), the
// "catalog, never an inheritance hierarchy" design note of §9.
type Registry struct {
	byKind map[int]Loader
}

// NewRegistry creates an empty loader Registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[int]Loader)}
}

// Register binds l under its own HandledKind.
func (r *Registry) Register(l Loader) {
	r.byKind[l.HandledKind()] = l
}

// Get returns the Loader registered for kind.
func (r *Registry) Get(kind int) (Loader, bool) {
	l, ok := r.byKind[kind]
	return l, ok
}
