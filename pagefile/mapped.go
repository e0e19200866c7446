package pagefile

import (
	"errors"
	"fmt"

	"github.com/hupe1980/mkmax/internal/mmap"
)

// MappedFile serves pages of an existing page file from a read-only mapping.
type MappedFile struct {
	m        *mmap.File
	pageSize int
	numPages int
}

// OpenMappedFile maps the page file at path.
func OpenMappedFile(path string, pageSize int) (*MappedFile, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pagefile: map %s: %w", path, err)
	}
	if m.Len()%pageSize != 0 {
		_ = m.Close()
		return nil, fmt.Errorf("pagefile: %s: size %d is not a multiple of page size %d", path, m.Len(), pageSize)
	}
	// Tree traversals jump between pages.
	_ = m.Advise(mmap.AdviceRandom)

	return &MappedFile{
		m:        m,
		pageSize: pageSize,
		numPages: m.Len() / pageSize,
	}, nil
}

func (f *MappedFile) ReadPage(id PageID) ([]byte, error) {
	if int(id) >= f.numPages {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	b, err := f.m.Region(int(id)*f.pageSize, f.pageSize)
	if errors.Is(err, mmap.ErrClosed) {
		return nil, ErrClosed
	}
	return b, err
}

func (f *MappedFile) WritePage(PageID, []byte) error { return ErrReadOnly }

func (f *MappedFile) AllocatePage() (PageID, error) { return 0, ErrReadOnly }

func (f *MappedFile) PageSize() int { return f.pageSize }

func (f *MappedFile) NumPages() int { return f.numPages }

func (f *MappedFile) Sync() error { return nil }

func (f *MappedFile) Close() error { return f.m.Close() }
