package mmap

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned by accesses after Close.
	ErrClosed = errors.New("mmap: closed")
	// ErrRange is returned for regions outside the file.
	ErrRange = errors.New("mmap: region out of range")
)

// Advice tells the kernel how a mapping will be read.
type Advice int

const (
	AdviceNormal Advice = iota
	AdviceRandom
	AdviceSequential
	AdviceWillNeed
)

// File is a read-only mapping of a whole file.
type File struct {
	data   []byte
	closed atomic.Bool
	unmap  func() error
}

// Open maps the file at path. Empty files yield an empty mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return &File{}, nil
	}
	if int64(int(size)) != size {
		return nil, ErrRange
	}

	data, unmap, err := mapFile(f, int(size))
	if err != nil {
		return nil, err
	}
	return &File{data: data, unmap: unmap}, nil
}

// Len returns the size of the file in bytes.
func (m *File) Len() int { return len(m.data) }

// Bytes returns the whole mapping, or nil after Close.
func (m *File) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Region returns n bytes at off. The slice is capped so appends cannot
// reach into the following bytes, and is valid until Close.
func (m *File) Region(off, n int) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 || off+n > len(m.data) {
		return nil, ErrRange
	}
	return m.data[off : off+n : off+n], nil
}

// ReadAt copies from the mapping with io.ReaderAt semantics.
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrRange
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Advise passes the access pattern hint to the kernel. Hints are
// best-effort; platforms without madvise ignore them.
func (m *File) Advise(a Advice) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.data) == 0 {
		return nil
	}
	return advise(m.data, a)
}

// Close unmaps the file. Slices obtained before must not be used afterwards.
func (m *File) Close() error {
	if m.closed.Swap(true) || m.unmap == nil {
		return nil
	}
	return m.unmap()
}
