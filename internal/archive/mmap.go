package archive

import (
	"bytes"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// mmapThreshold is the file size above which Repository.Acquire parses the
// archive from a read-only memory mapping instead of reading it through an
// open file. Either way Load copies each entry's bytes into the Archive
// with io.ReadAll.
const mmapThreshold = 1 << 20

// mmapFile memory-maps path read-only for the lifetime the returned unmap
// func is not yet called.
func mmapFile(path string) (data []byte, unmap func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, xerrors.Errorf("archive: opening %q: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, xerrors.Errorf("archive: statting %q: %w", path, err)
	}
	if fi.Size() == 0 {
		return nil, func() error { return nil }, nil
	}

	data, err = unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, xerrors.Errorf("archive: mmap %q: %w", path, err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}

// LoadMmap behaves like Load but parses the cpio stream out of a
// memory-mapped view of path rather than reading the file; the entries
// themselves are still copied out of the mapping by Load. Repository.Acquire
// picks this path automatically above mmapThreshold.
func LoadMmap(path string) (*Archive, error) {
	data, unmap, err := mmapFile(path)
	if err != nil {
		return nil, err
	}
	a, err := Load(bytes.NewReader(data))
	if err != nil {
		unmap()
		return nil, err
	}
	a.unmap = unmap
	return a, nil
}

// Close releases a's memory mapping, if Load obtained one through
// LoadMmap. It is a no-op for an Archive built from Load directly.
func (a *Archive) Close() error {
	if a.unmap == nil {
		return nil
	}
	unmap := a.unmap
	a.unmap = nil
	return unmap()
}
