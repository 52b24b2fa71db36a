package zone

import (
	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/archive"
	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/loader"
	"github.com/sub20hz/OpenAssetTools/internal/pointer"
	"github.com/sub20hz/OpenAssetTools/internal/pool"
	"github.com/sub20hz/OpenAssetTools/internal/schema"
	"github.com/sub20hz/OpenAssetTools/internal/scriptstring"
	"github.com/sub20hz/OpenAssetTools/internal/walker"
	"github.com/sub20hz/OpenAssetTools/internal/zonedef"
	"github.com/sub20hz/OpenAssetTools/oat"
)

// BuildOptions configures a Build call. KindOf maps a zone definition's
// asset-kind identifier (the text before the comma on a non-metadata line,
// e.g. "stringtable") to the small integer kind id the Loaders registry and
// asset pool key on; resolving that mapping for the ~30-80 kinds a real
// generation supports is exactly the per-game asset-type catalog this
// module treats as a non-goal, so callers supply their own.
type BuildOptions struct {
	SourceSearchPath    []string
	AssetSearchPath     []string
	GDTSearchPath       []string
	AssetListSearchPath []string
	IgnoreOptions       zonedef.IgnoreOptions

	Loaders *loader.Registry
	KindOf  func(kind string) (int, bool)
	GDT     *loader.GDT

	// Registry is the process-global cross-zone asset registry; nil creates
	// a fresh one private to this build.
	Registry *pool.Registry
	// Archives is acquired by name (cpio sidecar paths) for the lifetime of
	// the returned Zone and released by Zone.Close.
	Archives    []string
	ArchiveRepo *archive.Repository
	Customs     map[string]walker.Custom
}

// Build implements §4.7's build path: parse the zone definition, resolve
// its game to a generation, resolve ignores, dispatch an asset-loader
// plugin for every declared (kind, name) not ignored, walk each
// SchemaLoader-backed payload into the block arenas, and run each used
// loader's FinalizeForZone hook. It stops short of emitting the `.ff` file
// itself; call Write for that.
func Build(project string, opts BuildOptions) (*Zone, error) {
	def, err := zonedef.Parse(opts.SourceSearchPath, project)
	if err != nil {
		return nil, err
	}

	gen, ok := oat.Resolve(def.Game)
	if !ok {
		return nil, xerrors.Errorf("zone %q: game %q: %w", project, def.Game, ErrUnknownGame)
	}
	creator, ok := oat.CreatorFor(gen)
	if !ok {
		return nil, xerrors.Errorf("zone %q: %w", project, ErrUnknownGame)
	}

	ignored, err := zonedef.ResolveIgnores(opts.SourceSearchPath, opts.AssetListSearchPath, def, opts.IgnoreOptions)
	if err != nil {
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = pool.NewRegistry()
	}

	alloc := block.New(creator.Blocks)
	alloc.Push(creator.NormalBlock())
	strs := scriptstring.New()
	assets := pool.New()

	z := &Zone{
		Name:       def.Name,
		Generation: gen,
		scriptStrs: strs,
		assets:     assets,
		registry:   registry,
		Alloc:      alloc,
		Codec:      pointer.New(),
	}
	z.Walker = walker.New(alloc, z.Codec, strs, assets, registry, walker.Options{BlockBits: creator.BlockBits})
	for id, c := range opts.Customs {
		z.Walker.RegisterCustom(id, c)
	}

	if len(opts.Archives) > 0 {
		repo := opts.ArchiveRepo
		if repo == nil {
			repo = archive.Global
		}
		z.archives = repo
		for _, path := range opts.Archives {
			if _, err := repo.Acquire(path); err != nil {
				return nil, xerrors.Errorf("zone %q: acquiring archive %q: %w", project, path, err)
			}
			z.archivePaths = append(z.archivePaths, path)
		}
	}

	m := &manager{zone: z, loaders: opts.Loaders, assetSearch: opts.AssetSearchPath, gdtSearch: opts.GDTSearchPath, gdt: opts.GDT}

	for _, decl := range def.Assets {
		if ignored[(zonedef.AssetKey{Kind: decl.Kind, Name: decl.Name})] {
			continue
		}
		kind, ok := opts.KindOf(decl.Kind)
		if !ok {
			return nil, xerrors.Errorf("zone %q: asset kind %q: %w", project, decl.Kind, ErrUnknownAssetKind)
		}
		asset, err := m.load(kind, decl.Name)
		if err != nil {
			return nil, xerrors.Errorf("zone %q: loading %s,%s: %w", project, decl.Kind, decl.Name, err)
		}

		entry := indexEntry{Kind: kind, Name: decl.Name}
		if l, ok := opts.Loaders.Get(kind); ok {
			if sl, ok := l.(loader.SchemaLoader); ok {
				tag, err := z.Walker.WriteRoot(creator.NormalBlock(), schemaRoot(sl.SchemaType(), decl.Name, asset.Payload))
				if err != nil {
					return nil, xerrors.Errorf("zone %q: serializing %s,%s: %w", project, decl.Kind, decl.Name, err)
				}
				entry.Offset = uint32(pointer.Encode(creator.BlockBits, tag))
			}
		}
		z.Index = append(z.Index, entry)
	}

	finalized := map[int]bool{}
	for _, e := range z.Index {
		if finalized[e.Kind] {
			continue
		}
		finalized[e.Kind] = true
		l, _ := opts.Loaders.Get(e.Kind)
		if err := l.FinalizeForZone(z); err != nil {
			return nil, xerrors.Errorf("zone %q: finalizing kind %d: %w", project, e.Kind, err)
		}
	}

	registry.Register(assets)
	return z, nil
}

// schemaRoot wraps a loaded asset's payload in the root schema.Struct its
// SchemaLoader declares, by the fixed two-field convention
// (Name, Payload) every SchemaLoader in this module follows.
func schemaRoot(t *schema.StructType, name string, payload any) *schema.Struct {
	s := schema.NewStruct(t)
	s.Set("Name", name)
	s.Set("Payload", payload)
	return s
}
