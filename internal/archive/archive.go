// Package archive implements the asset-archive repository: a cpio-backed,
// read-only, named-entry container an asset-loader plugin pulls a GDT or
// raw asset from (§6.2), and the process-lifetime, reference-counted
// registry of loaded archives the "Global singletons" design note of §9
// calls for (its IWD/IPAK/SoundBank repositories, modeled here as one
// generic container kind since the container format itself is the same
// shape in every case: a flat bag of named byte blobs).
package archive

import (
	"io"
	"os"
	"sync"

	"github.com/cavaliercoder/go-cpio"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned when a named entry is absent from an Archive.
var ErrNotFound = xerrors.New("archive: entry not found")

// Archive is an opened, fully-read cpio container: every entry's bytes are
// held in memory, matching how a loader plugin wants to query it (the
// source asset formats archives hold, GDTs and raw files, are themselves
// read whole).
type Archive struct {
	entries map[string][]byte
	names   []string

	// unmap releases the memory mapping backing this Archive when it was
	// opened via LoadMmap; nil for an Archive built from Load directly.
	unmap func() error
}

// Load reads every entry of a cpio stream into memory.
func Load(r io.Reader) (*Archive, error) {
	cr := cpio.NewReader(r)
	a := &Archive{entries: make(map[string][]byte)}
	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("archive: reading cpio header: %w", err)
		}
		body, err := io.ReadAll(cr)
		if err != nil {
			return nil, xerrors.Errorf("archive: reading entry %q: %w", hdr.Name, err)
		}
		a.entries[hdr.Name] = body
		a.names = append(a.names, hdr.Name)
	}
	return a, nil
}

// Get returns the bytes of a named entry.
func (a *Archive) Get(name string) ([]byte, bool) {
	b, ok := a.entries[name]
	return b, ok
}

// Names returns every entry name, in archive order.
func (a *Archive) Names() []string { return a.names }

// Write serializes entries (in the given order) as a cpio stream, the
// inverse of Load; used by tests and by any tool that repacks an archive.
func Write(w io.Writer, order []string, entries map[string][]byte) error {
	cw := cpio.NewWriter(w)
	for _, name := range order {
		body := entries[name]
		if err := cw.WriteHeader(&cpio.Header{Name: name, Size: int64(len(body)), Mode: 0o644}); err != nil {
			return xerrors.Errorf("archive: writing header for %q: %w", name, err)
		}
		if _, err := cw.Write(body); err != nil {
			return xerrors.Errorf("archive: writing body for %q: %w", name, err)
		}
	}
	return cw.Close()
}

type entry struct {
	archive *Archive
	refs    int
}

// Repository is the process-lifetime, reference-counted set of open
// archives: a zone acquires one by path on first use and releases it when
// it unloads; the archive is dropped once its last referencing zone does.
type Repository struct {
	mu     sync.Mutex
	byPath map[string]*entry
}

// NewRepository creates an empty Repository.
func NewRepository() *Repository {
	return &Repository{byPath: make(map[string]*entry)}
}

// Global is the process-lifetime archive repository every zone shares.
var Global = NewRepository()

// Acquire opens (or returns the already-open) archive at path, incrementing
// its reference count.
func (r *Repository) Acquire(path string) (*Archive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byPath[path]; ok {
		e.refs++
		return e.archive, nil
	}

	a, err := acquireArchive(path)
	if err != nil {
		return nil, xerrors.Errorf("archive: loading %q: %w", path, err)
	}
	r.byPath[path] = &entry{archive: a, refs: 1}
	return a, nil
}

// acquireArchive picks LoadMmap over a buffered Load once path is large
// enough that avoiding the copy matters (mmapThreshold).
func acquireArchive(path string) (*Archive, error) {
	if fi, err := os.Stat(path); err == nil && fi.Size() > mmapThreshold {
		return LoadMmap(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Release decrements path's reference count, dropping the archive once it
// reaches zero.
func (r *Repository) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byPath[path]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		e.archive.Close()
		delete(r.byPath, path)
	}
}

// RefCount reports path's current reference count, for tests.
func (r *Repository) RefCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byPath[path]; ok {
		return e.refs
	}
	return 0
}
