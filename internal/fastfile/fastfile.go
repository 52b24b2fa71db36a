// Package fastfile implements the on-disk `.ff` container mechanics of
// §6.1: the 16-byte container header, and the uncompressed zone stream's
// preamble (block-size table, script-string table, asset index) that sits
// in front of the block contents the graph walker (C4) produces. It is
// pure plumbing: orchestrating which generation to dispatch to, and
// driving the walker over each declared asset, is internal/zone's job.
package fastfile

import (
	"bufio"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/sub20hz/OpenAssetTools/internal/block"
	"github.com/sub20hz/OpenAssetTools/internal/scriptstring"
)

// ErrInvalidHeader is returned when a stream's magic/version/flags cannot
// be parsed, or (by the caller, after comparing MagicString) do not match
// any known generation.
var ErrInvalidHeader = xerrors.New("fastfile: invalid header")

// FlagEncrypted is the single flags bit §6.1 defines: bit 0.
const FlagEncrypted uint32 = 1 << 0

// Header is the fast-file container header: an 8-byte generation-specific
// magic, a little-endian version, and a flags bitfield.
type Header struct {
	Magic   [8]byte
	Version uint32
	Flags   uint32
}

// NewHeader builds a Header from a magic string (truncated/zero-padded to
// 8 bytes) and version, setting FlagEncrypted if encrypted is true.
func NewHeader(magic string, version uint32, encrypted bool) Header {
	var h Header
	copy(h.Magic[:], magic)
	h.Version = version
	if encrypted {
		h.Flags |= FlagEncrypted
	}
	return h
}

// MagicString returns h's magic with trailing NUL padding trimmed.
func (h Header) MagicString() string {
	n := len(h.Magic)
	for n > 0 && h.Magic[n-1] == 0 {
		n--
	}
	return string(h.Magic[:n])
}

// Encrypted reports whether FlagEncrypted is set.
func (h Header) Encrypted() bool { return h.Flags&FlagEncrypted != 0 }

const headerSize = 8 + 4 + 4

// WriteHeader writes h's 16 bytes to w.
func WriteHeader(w io.Writer, h Header) error {
	var buf [headerSize]byte
	copy(buf[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	if _, err := w.Write(buf[:]); err != nil {
		return xerrors.Errorf("fastfile: writing header: %w", err)
	}
	return nil
}

// ReadHeader reads and decodes a Header from r. It does not validate the
// magic against any generation table; §4.7 load-path step 1 dispatches to
// the matching generation loader, and an unrecognized magic/version is
// fatal there, not here.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, xerrors.Errorf("fastfile: reading header: %w", ErrInvalidHeader)
	}
	var h Header
	copy(h.Magic[:], buf[0:8])
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	h.Flags = binary.LittleEndian.Uint32(buf[12:16])
	return h, nil
}

// AssetIndexEntry names one asset in zone-declaration order: the asset-list
// preamble of §6.1, written ahead of the payloads themselves. Offset is the
// tagged stream offset (§3) of the asset's root struct, encoded the same
// way any other pointer field is; a kind with no schema-driven root (the
// per-kind catalogs this module leaves as a collaborator) carries
// pointer.Null here and is resolved purely in-memory, outside the walked
// graph.
type AssetIndexEntry struct {
	Kind   int
	Name   string
	Offset uint32
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeCString(w io.Writer, s string) error {
	_, err := w.Write(append([]byte(s), 0))
	return err
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

// WriteZone writes the uncompressed zone stream of §6.1 to w: the block-size
// table, script-string count and table, asset index, and finally the full
// contents of every block that is neither Stream nor Runtime, in catalog
// (id) order; Runtime blocks are sized but never serialized. w is typically a
// *chunk.Writer so the whole stream ends up chunked/compressed/enciphered
// on disk; fastfile itself is agnostic to that, it only needs an io.Writer.
// Stream blocks are sized here (their cursor still lands in the block-size
// table) but their contents are written separately by WriteStreamBlocks,
// since they are meant to be kept memory-mapped rather than copied through
// a compression/cipher pass (spec.md's Block glossary entry).
func WriteZone(w io.Writer, alloc *block.Allocator, strings *scriptstring.Table, index []AssetIndexEntry) error {
	n := alloc.NumBlocks()
	if err := writeU32(w, uint32(n)); err != nil {
		return xerrors.Errorf("fastfile: writing block count: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := writeU32(w, alloc.Cursor(block.ID(i))); err != nil {
			return xerrors.Errorf("fastfile: writing block %d size: %w", i, err)
		}
	}

	all := strings.Strings()
	if err := writeU32(w, uint32(len(all))); err != nil {
		return xerrors.Errorf("fastfile: writing script-string count: %w", err)
	}
	for _, s := range all {
		if err := writeCString(w, s); err != nil {
			return xerrors.Errorf("fastfile: writing script string %q: %w", s, err)
		}
	}

	if err := writeU32(w, uint32(len(index))); err != nil {
		return xerrors.Errorf("fastfile: writing asset index count: %w", err)
	}
	for _, e := range index {
		if err := writeU32(w, uint32(e.Kind)); err != nil {
			return xerrors.Errorf("fastfile: writing asset index entry kind: %w", err)
		}
		if err := writeCString(w, e.Name); err != nil {
			return xerrors.Errorf("fastfile: writing asset index entry name %q: %w", e.Name, err)
		}
		if err := writeU32(w, e.Offset); err != nil {
			return xerrors.Errorf("fastfile: writing asset index entry offset: %w", err)
		}
	}

	for i := 0; i < n; i++ {
		if d := alloc.Def(block.ID(i)); d.Stream || d.Persistence == block.Runtime {
			continue
		}
		if _, err := w.Write(alloc.Bytes(block.ID(i))); err != nil {
			return xerrors.Errorf("fastfile: writing block %d contents: %w", i, err)
		}
	}
	return nil
}

// WriteStreamBlocks writes the raw contents of every Stream block in
// alloc's catalog, in catalog (id) order. w is typically a *chunk.Writer
// configured with no processors, so this section of the `.ff` carries no
// compression or cipher layer: the bytes on disk are exactly the bytes a
// loader would address directly, without a decode pass.
func WriteStreamBlocks(w io.Writer, alloc *block.Allocator) error {
	for i := 0; i < alloc.NumBlocks(); i++ {
		id := block.ID(i)
		if !alloc.Def(id).Stream {
			continue
		}
		if _, err := w.Write(alloc.Bytes(id)); err != nil {
			return xerrors.Errorf("fastfile: writing stream block %d contents: %w", i, err)
		}
	}
	return nil
}

// ReadZone is WriteZone's inverse: it allocates alloc's read-side arenas to
// the sizes recorded on disk, loads the script-string table and asset
// index, and copies the bytes of every block that is neither a Stream block
// (see ReadStreamBlocks) nor a Runtime block (left zero-filled) into its
// arena, leaving alloc ready
// for walker.ReadRoot calls against the returned asset index. r is
// consumed exactly once, front to back; no further reads from r are needed
// once ReadZone returns.
func ReadZone(r io.Reader, alloc *block.Allocator) (*scriptstring.Table, []AssetIndexEntry, error) {
	br := bufio.NewReader(r)

	n, err := readU32(br)
	if err != nil {
		return nil, nil, xerrors.Errorf("fastfile: reading block count: %w", err)
	}
	sizes := make([]uint32, n)
	for i := range sizes {
		sizes[i], err = readU32(br)
		if err != nil {
			return nil, nil, xerrors.Errorf("fastfile: reading block %d size: %w", i, err)
		}
	}
	alloc.AllocArenas(sizes)

	stringCount, err := readU32(br)
	if err != nil {
		return nil, nil, xerrors.Errorf("fastfile: reading script-string count: %w", err)
	}
	strs := make([]string, stringCount)
	for i := range strs {
		strs[i], err = readCString(br)
		if err != nil {
			return nil, nil, xerrors.Errorf("fastfile: reading script string %d: %w", i, err)
		}
	}
	table, err := scriptstring.Load(strs)
	if err != nil {
		return nil, nil, xerrors.Errorf("fastfile: loading script-string table: %w", err)
	}

	indexCount, err := readU32(br)
	if err != nil {
		return nil, nil, xerrors.Errorf("fastfile: reading asset index count: %w", err)
	}
	index := make([]AssetIndexEntry, indexCount)
	for i := range index {
		kind, err := readU32(br)
		if err != nil {
			return nil, nil, xerrors.Errorf("fastfile: reading asset index entry %d kind: %w", i, err)
		}
		name, err := readCString(br)
		if err != nil {
			return nil, nil, xerrors.Errorf("fastfile: reading asset index entry %d name: %w", i, err)
		}
		offset, err := readU32(br)
		if err != nil {
			return nil, nil, xerrors.Errorf("fastfile: reading asset index entry %d offset: %w", i, err)
		}
		index[i] = AssetIndexEntry{Kind: int(kind), Name: name, Offset: offset}
	}

	for i, sz := range sizes {
		if d := alloc.Def(block.ID(i)); d.Stream || d.Persistence == block.Runtime {
			continue
		}
		if _, err := io.ReadFull(br, alloc.Arena(block.ID(i))); err != nil {
			return nil, nil, xerrors.Errorf("fastfile: reading block %d contents (%d bytes): %w", i, sz, err)
		}
	}

	return table, index, nil
}

// ReadStreamBlocks is WriteStreamBlocks's inverse: it fills the arena of
// every Stream block in alloc's catalog, already sized by a prior ReadZone
// call, from r (typically a *chunk.Reader configured with no processors).
func ReadStreamBlocks(r io.Reader, alloc *block.Allocator) error {
	br := bufio.NewReader(r)
	for i := 0; i < alloc.NumBlocks(); i++ {
		id := block.ID(i)
		if !alloc.Def(id).Stream {
			continue
		}
		if _, err := io.ReadFull(br, alloc.Arena(id)); err != nil {
			return xerrors.Errorf("fastfile: reading stream block %d contents: %w", i, err)
		}
	}
	return nil
}
