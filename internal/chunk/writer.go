package chunk

import (
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// Writer accepts an arbitrary number of written bytes and partitions them
// into Config.ChunkSize-sized chunks, each run through the pipeline's
// processors in reverse (encode) order and framed with a length prefix. The
// write side never parallelizes encoding -- §4.1 only calls for concurrency
// on read.
type Writer struct {
	cfg   Config
	w     io.Writer
	buf   bytes.Buffer
	chunk int
	err   error
}

// NewWriter wraps w (positioned right after the container header) in a
// chunk-pipeline Writer.
func NewWriter(w io.Writer, cfg Config) *Writer {
	return &Writer{cfg: cfg, w: w}
}

// Write implements io.Writer, emitting complete chunks as they fill.
func (cw *Writer) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, _ := cw.buf.Write(p)
	for cw.buf.Len() >= cw.cfg.ChunkSize {
		if err := cw.emit(cw.buf.Next(cw.cfg.ChunkSize)); err != nil {
			cw.err = err
			return n, err
		}
	}
	return n, nil
}

func (cw *Writer) emit(raw []byte) error {
	out, err := cw.cfg.encode(cw.chunk, raw)
	if err != nil {
		return err
	}
	cw.chunk++
	return cw.writeFramed(out)
}

func (cw *Writer) writeFramed(body []byte) error {
	lenBuf := make([]byte, cw.cfg.lengthSize())
	switch len(lenBuf) {
	case 4:
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(body)))
	case 8:
		binary.LittleEndian.PutUint64(lenBuf, uint64(len(body)))
	default:
		return xerrors.Errorf("chunk: unsupported length prefix width %d: %w", len(lenBuf), ErrInvalidChunk)
	}
	if _, err := cw.w.Write(lenBuf); err != nil {
		return xerrors.Errorf("chunk: writing length prefix: %w", err)
	}
	if _, err := cw.w.Write(body); err != nil {
		return xerrors.Errorf("chunk: writing body: %w", err)
	}
	return nil
}

// Flush emits any partial chunk still buffered, followed by the zero-length
// EOF marker. It must be called exactly once, after the last Write.
func (cw *Writer) Flush() error {
	if cw.err != nil {
		return cw.err
	}
	if cw.buf.Len() > 0 {
		if err := cw.emit(cw.buf.Next(cw.buf.Len())); err != nil {
			cw.err = err
			return err
		}
	}
	return cw.writeFramed(nil)
}
