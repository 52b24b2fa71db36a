package chunk

import (
	"encoding/binary"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// slotResult is what a decode worker hands back to the consumer through its
// dedicated slot channel.
type slotResult struct {
	data []byte
	err  error
	eof  bool
}

// Reader exposes the chunk stream of a fast file as a single, logically
// contiguous io.Reader. Internally it keeps up to Config.Streams chunks
// decoding concurrently, but Read always returns bytes in the same order a
// fully serial pipeline would have produced them (Testable property 3).
type Reader struct {
	cfg Config

	readMu sync.Mutex // serializes raw chunk reads from r; workers never touch r directly
	r      io.Reader

	slots    []chan slotResult
	fillOnce sync.Once
	group    *errgroup.Group // bounds in-flight decode workers to cfg.streams()

	curChunk int // next chunk index the consumer expects
	curBuf   []byte
	curOff   int
	atEOF    bool
	err      error
}

// NewReader wraps r (the raw fast-file byte source, positioned right after
// the container header) in a chunk-pipeline Reader.
func NewReader(r io.Reader, cfg Config) *Reader {
	n := cfg.streams()
	slots := make([]chan slotResult, n)
	for i := range slots {
		slots[i] = make(chan slotResult, 1)
	}
	g := &errgroup.Group{}
	g.SetLimit(n)
	return &Reader{cfg: cfg, r: r, slots: slots, group: g}
}

func (cr *Reader) readRawChunk() (body []byte, eof bool, err error) {
	cr.readMu.Lock()
	defer cr.readMu.Unlock()

	lenBuf := make([]byte, cr.cfg.lengthSize())
	if _, err := io.ReadFull(cr.r, lenBuf); err != nil {
		if err == io.EOF {
			return nil, false, xerrors.Errorf("chunk: reading length prefix: %w", io.ErrUnexpectedEOF)
		}
		return nil, false, xerrors.Errorf("chunk: reading length prefix: %w", err)
	}
	var length uint64
	switch len(lenBuf) {
	case 4:
		length = uint64(binary.LittleEndian.Uint32(lenBuf))
	case 8:
		length = binary.LittleEndian.Uint64(lenBuf)
	default:
		return nil, false, xerrors.Errorf("chunk: unsupported length prefix width %d: %w", len(lenBuf), ErrInvalidChunk)
	}
	if length == 0 {
		return nil, true, nil
	}
	if cr.cfg.ChunkSize > 0 && length > uint64(cr.cfg.ChunkSize)*2 {
		// A compressed/enciphered body can legitimately be larger than the
		// decoded chunk size, but not by an unbounded amount; this guards
		// against a corrupt length prefix before we attempt a giant alloc.
		return nil, false, xerrors.Errorf("chunk: body length %d: %w", length, ErrInvalidChunkSize)
	}
	body = make([]byte, length)
	if _, err := io.ReadFull(cr.r, body); err != nil {
		return nil, false, xerrors.Errorf("chunk: reading body of %d bytes: %w", length, ErrShortRead)
	}
	return body, false, nil
}

// fill launches the single producer goroutine that reads raw chunks in
// order and hands each to cr.group, an errgroup.Group capped at
// Config.Streams in-flight decodes. A worker's result is delivered into
// slot[i%N] only after chunk i-1's result has been delivered (each chunk
// waits on its predecessor's done channel), so every slot receives its
// results in chunk order however the decodes interleave; because the
// channel has capacity 1, draining chunk i is what lets the consumer make
// progress, but it is the errgroup's SetLimit that actually bounds how
// many decode workers run at once — exactly the "N pre-allocated buffers"
// bound of §4.1.
func (cr *Reader) fill() {
	cr.fillOnce.Do(func() {
		go func() {
			prev := make(chan struct{})
			close(prev)
			for i := 0; ; i++ {
				body, eof, err := cr.readRawChunk()
				slot := cr.slots[i%len(cr.slots)]
				if err != nil {
					<-prev
					slot <- slotResult{err: err}
					return
				}
				if eof {
					<-prev
					slot <- slotResult{eof: true}
					return
				}
				idx, b, wait, done := i, body, prev, make(chan struct{})
				prev = done
				cr.group.Go(func() error {
					out, err := cr.cfg.decode(idx, b)
					<-wait
					slot <- slotResult{data: out, err: err}
					close(done)
					return err
				})
			}
		}()
	})
}

// Read implements io.Reader.
func (cr *Reader) Read(p []byte) (int, error) {
	if cr.err != nil {
		return 0, cr.err
	}
	if cr.atEOF {
		return 0, io.EOF
	}
	cr.fill()

	for cr.curOff >= len(cr.curBuf) {
		slot := cr.slots[cr.curChunk%len(cr.slots)]
		res := <-slot
		if res.err != nil {
			cr.err = res.err
			return 0, cr.err
		}
		if res.eof {
			cr.atEOF = true
			return 0, io.EOF
		}
		cr.curBuf = res.data
		cr.curOff = 0
		cr.curChunk++
	}
	n := copy(p, cr.curBuf[cr.curOff:])
	cr.curOff += n
	return n, nil
}
