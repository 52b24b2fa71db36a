package zone

import (
	"path/filepath"

	"github.com/google/renameio"
	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/chunk"
	"github.com/sub20hz/OpenAssetTools/internal/fastfile"
	"github.com/sub20hz/OpenAssetTools/oat"
)

// defaultChunkSize bounds a single chunk's processed size; generations
// that need a different bound can still override via WriteConfig.
const defaultChunkSize = 0x20000

// WriteConfig tunes the chunk pipeline a fast file is emitted through.
// Zero values fall back to generation-agnostic defaults.
type WriteConfig struct {
	ChunkSize int
}

// Write implements §4.7 build-path step 6: it serializes z, already built
// by Build, through C2's block arenas into C1's chunk-pipelined `.ff`
// container mechanics, writing <outputDir>/<z.Name>.ff atomically (a
// partially written fast file is never observable under its final name).
func Write(z *Zone, outputDir string, cfg WriteConfig) (err error) {
	creator, ok := oat.CreatorFor(z.Generation)
	if !ok {
		return xerrors.Errorf("zone %q: %w", z.Name, ErrUnknownGame)
	}

	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}

	out, err := renameio.TempFile("", filepath.Join(outputDir, z.Name+".ff"))
	if err != nil {
		return xerrors.Errorf("zone %q: creating output file: %w", z.Name, err)
	}
	defer out.Cleanup()

	header := fastfile.NewHeader(creator.Magic, creator.Version, creator.CipherScheme != "none")
	if err := fastfile.WriteHeader(out, header); err != nil {
		return err
	}

	cw := chunk.NewWriter(out, chunk.Config{ChunkSize: chunkSize, Processors: creator.Processors})
	index := make([]fastfile.AssetIndexEntry, len(z.Index))
	for i, e := range z.Index {
		index[i] = fastfile.AssetIndexEntry{Kind: e.Kind, Name: e.Name, Offset: e.Offset}
	}
	if err := fastfile.WriteZone(cw, z.Alloc, z.scriptStrs, index); err != nil {
		return xerrors.Errorf("zone %q: writing zone stream: %w", z.Name, err)
	}
	if err := cw.Flush(); err != nil {
		return xerrors.Errorf("zone %q: flushing chunk pipeline: %w", z.Name, err)
	}

	// Stream blocks (spec.md's Block glossary entry: "data kept
	// memory-mapped rather than copied") are written as their own chunk
	// section with no processors, immediately following the compressed
	// section's own EOF marker: their bytes on disk are never run through
	// inflate/decipher, so a loader can address them directly.
	sw := chunk.NewWriter(out, chunk.Config{ChunkSize: chunkSize})
	if err := fastfile.WriteStreamBlocks(sw, z.Alloc); err != nil {
		return xerrors.Errorf("zone %q: writing stream blocks: %w", z.Name, err)
	}
	if err := sw.Flush(); err != nil {
		return xerrors.Errorf("zone %q: flushing stream block section: %w", z.Name, err)
	}

	if err := out.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("zone %q: finalizing output file: %w", z.Name, err)
	}
	return nil
}
