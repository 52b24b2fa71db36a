// Package chunk implements the fast-file chunk pipeline: it wraps an
// on-disk file in a logically contiguous, forward-only, arbitrarily large
// byte stream made up of length-prefixed, independently processed chunks.
//
// On disk each chunk is a size prefix followed by that many processed
// bytes; a zero-length chunk marks end of stream. Processing (decompression,
// decipherment) happens per chunk, which is what lets the reader decode
// several chunks concurrently while still handing the caller bytes in
// exactly the order a serial pipeline would have produced.
package chunk

import "golang.org/x/xerrors"

var (
	// ErrInvalidChunkSize is returned when a chunk's processed size exceeds
	// the configured maximum, or a length prefix is nonsensical.
	ErrInvalidChunkSize = xerrors.New("chunk: invalid chunk size")

	// ErrShortRead is returned when a chunk body is truncated.
	ErrShortRead = xerrors.New("chunk: short read of chunk body")

	// ErrInvalidChunk is a catch-all for structurally malformed chunk framing.
	ErrInvalidChunk = xerrors.New("chunk: invalid chunk")
)

// DefaultLengthSize is the width, in bytes, of the little-endian chunk
// length prefix when Config.LengthSize is zero. The real engines vary this with their target size_t; 4 covers
// every generation this module targets.
const DefaultLengthSize = 4

// Config describes one chunk pipeline: its maximum chunk size and the
// ordered list of processors applied when decoding a chunk (read side).
// The write side applies the same processors in reverse order, since a
// pipeline_config and its inverse are mirror images of each other.
type Config struct {
	// ChunkSize is the maximum size, in bytes, of a chunk's processed
	// (uncompressed, deciphered) form.
	ChunkSize int

	// LengthSize is the width of the on-disk length prefix. Zero means
	// DefaultLengthSize.
	LengthSize int

	// Processors lists the chunk processors in read (decode) order, e.g.
	// []Processor{Decipher(...), Inflate()} to mean "decipher, then
	// inflate" -- matching the on-disk body being enciphered outermost.
	Processors []Processor

	// Streams is the number of decode streams (pre-allocated in-flight
	// chunk slots) the reader keeps busy concurrently. Zero means 1
	// (serial decode).
	Streams int
}

func (c Config) lengthSize() int {
	if c.LengthSize == 0 {
		return DefaultLengthSize
	}
	return c.LengthSize
}

func (c Config) streams() int {
	if c.Streams <= 0 {
		return 1
	}
	return c.Streams
}

// decode runs the processor chain in declared (read) order over a single
// chunk body, threading the chunk's stream index through so processors that
// need it (decipher) can derive a per-chunk nonce.
func (c Config) decode(streamIndex int, in []byte) ([]byte, error) {
	out := in
	for _, p := range c.Processors {
		var err error
		out, err = p.Decode(streamIndex, out)
		if err != nil {
			return nil, err
		}
	}
	if len(out) > c.ChunkSize {
		return nil, xerrors.Errorf("chunk %d: decoded size %d exceeds chunk size %d: %w", streamIndex, len(out), c.ChunkSize, ErrInvalidChunkSize)
	}
	return out, nil
}

// encode runs the processor chain in reverse (write) order over a single
// chunk body.
func (c Config) encode(streamIndex int, in []byte) ([]byte, error) {
	if len(in) > c.ChunkSize {
		return nil, xerrors.Errorf("chunk %d: input size %d exceeds chunk size %d: %w", streamIndex, len(in), c.ChunkSize, ErrInvalidChunkSize)
	}
	out := in
	for i := len(c.Processors) - 1; i >= 0; i-- {
		var err error
		out, err = c.Processors[i].Encode(streamIndex, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
