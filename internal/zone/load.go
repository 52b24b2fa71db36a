package zone

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/chunk"
	"github.com/sub20hz/OpenAssetTools/internal/fastfile"
	"github.com/sub20hz/OpenAssetTools/internal/loader"
	"github.com/sub20hz/OpenAssetTools/internal/pointer"
	"github.com/sub20hz/OpenAssetTools/internal/pool"
	"github.com/sub20hz/OpenAssetTools/internal/scriptstring"
	"github.com/sub20hz/OpenAssetTools/internal/walker"
	"github.com/sub20hz/OpenAssetTools/oat"
)

// ErrVersionMismatch is returned when a fast file's magic resolves to a
// generation whose Creator declares a different version.
var ErrVersionMismatch = xerrors.New("zone: version mismatch")

// LoadOptions configures a Load call. Loaders is the same per-generation
// registry a Build call uses; only kinds that both appear in the file's
// asset index and have a registered loader.SchemaLoader get their payload
// walked back out of the graph (§1 Non-goals: the per-kind dumpers
// themselves, one per asset kind, stay out of this module's scope, but the
// registry lookup that would dispatch to them is this module's job).
type LoadOptions struct {
	Loaders  *loader.Registry
	Registry *pool.Registry
	Customs  map[string]walker.Custom
	// ChunkSize must match the size the file was written with; it governs
	// only the guard against an oversized processed chunk (§4.1), never the
	// byte stream itself (Testable property 3: chunk size is not part of
	// the wire format).
	ChunkSize int
	Strict    bool
}

// Load implements §4.7's load path: read the container header, dispatch on
// its magic to a generation Creator, open the chunk pipeline with that
// generation's processor chain, deserialize the zone stream's preamble and
// every block's contents, then walk back out the payload of every asset
// whose kind has a registered SchemaLoader.
func Load(path string, opts LoadOptions) (*Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("zone: opening %q: %w", path, err)
	}
	defer f.Close()

	header, err := fastfile.ReadHeader(f)
	if err != nil {
		return nil, xerrors.Errorf("zone: %q: %w", path, err)
	}
	creator, ok := oat.CreatorForMagic(header.MagicString())
	if !ok {
		return nil, xerrors.Errorf("zone: %q: magic %q: %w", path, header.MagicString(), fastfile.ErrInvalidHeader)
	}
	if header.Version != creator.Version {
		return nil, xerrors.Errorf("zone: %q: version %d, generation %s expects %d: %w", path, header.Version, creator.Generation, creator.Version, ErrVersionMismatch)
	}
	if header.Encrypted() != (creator.CipherScheme != "none") {
		return nil, xerrors.Errorf("zone: %q: encrypted flag %v does not match generation %s: %w", path, header.Encrypted(), creator.Generation, fastfile.ErrInvalidHeader)
	}

	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}
	cr := chunk.NewReader(f, chunk.Config{ChunkSize: chunkSize, Processors: creator.Processors, Streams: 4})

	alloc := block.New(creator.Blocks)
	alloc.Push(creator.NormalBlock())
	strs, index, err := fastfile.ReadZone(cr, alloc)
	if err != nil {
		return nil, xerrors.Errorf("zone: %q: %w", path, err)
	}

	// cr's own EOF marker must be consumed before a second chunk.Reader can
	// safely take over f's read cursor: a partially drained reader leaves
	// the cursor wherever its read-ahead last landed, not at the section
	// boundary. The stream-block section immediately follows, chunk-framed
	// but with no processors (spec.md's Block glossary entry: data kept
	// memory-mapped rather than copied, never run through inflate/decipher).
	if _, err := io.Copy(io.Discard, cr); err != nil {
		return nil, xerrors.Errorf("zone: %q: draining zone stream: %w", path, err)
	}
	sr := chunk.NewReader(f, chunk.Config{ChunkSize: chunkSize, Streams: 4})
	if err := fastfile.ReadStreamBlocks(sr, alloc); err != nil {
		return nil, xerrors.Errorf("zone: %q: %w", path, err)
	}

	// §4.5: every zone-local script-string id is remapped into the
	// process-global interner as the zone is read.
	scriptstring.RemapTable(scriptstring.Global, strs)

	registry := opts.Registry
	if registry == nil {
		registry = pool.NewRegistry()
	}
	assets := pool.New()
	codec := pointer.New()
	w := walker.New(alloc, codec, strs, assets, registry, walker.Options{BlockBits: creator.BlockBits, Strict: opts.Strict})
	for id, c := range opts.Customs {
		w.RegisterCustom(id, c)
	}

	z := &Zone{
		Name:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Generation: creator.Generation,
		scriptStrs: strs,
		assets:     assets,
		registry:   registry,
		Alloc:      alloc,
		Codec:      codec,
		Walker:     w,
	}

	for _, e := range index {
		entry := indexEntry{Kind: e.Kind, Name: e.Name, Offset: e.Offset}
		z.Index = append(z.Index, entry)

		payload, err := readPayload(w, creator.BlockBits, opts.Loaders, e)
		if err != nil {
			return nil, xerrors.Errorf("zone: %q: reading %d,%s: %w", path, e.Kind, e.Name, err)
		}
		if err := assets.Add(&pool.Asset{Kind: e.Kind, Name: e.Name, Payload: payload}); err != nil {
			return nil, xerrors.Errorf("zone: %q: registering %d,%s: %w", path, e.Kind, e.Name, err)
		}
	}

	registry.Register(assets)
	return z, nil
}

// readPayload decodes the asset index entry e's root struct, when e's kind
// has a registered SchemaLoader, returning the Payload field every
// SchemaLoader's root schema carries by the (Name, Payload) convention
// zone.schemaRoot writes. A kind with no registered loader, or whose
// registered loader is not schema-backed, has no walked representation to
// recover here; its entry is still indexed and pool-registered under a nil
// payload, matching the per-kind-catalog non-goal.
func readPayload(w *walker.Walker, blockBits uint, loaders *loader.Registry, e fastfile.AssetIndexEntry) (any, error) {
	if loaders == nil || pointer.IsNull(pointer.Offset(e.Offset)) {
		return nil, nil
	}
	l, ok := loaders.Get(e.Kind)
	if !ok {
		return nil, nil
	}
	sl, ok := l.(loader.SchemaLoader)
	if !ok {
		return nil, nil
	}
	tag, ok := pointer.Decode(blockBits, pointer.Offset(e.Offset))
	if !ok {
		return nil, xerrors.Errorf("asset index entry %d,%s: %w", e.Kind, e.Name, pointer.ErrUnresolvedOffset)
	}
	root, err := w.ReadRoot(block.ID(tag.Block), tag.Offset, sl.SchemaType())
	if err != nil {
		return nil, err
	}
	return root.Get("Payload"), nil
}
