package pagefile

import (
	"fmt"
	"sync"
)

// MemoryFile keeps all pages in one contiguous slab.
type MemoryFile struct {
	mu       sync.RWMutex
	pageSize int
	slab     []byte
	numPages int
	closed   bool
}

// NewMemoryFile creates an empty in-memory page file.
func NewMemoryFile(pageSize int) *MemoryFile {
	return &MemoryFile{pageSize: pageSize}
}

func (m *MemoryFile) ReadPage(id PageID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	if int(id) >= m.numPages {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	off := int(id) * m.pageSize
	return m.slab[off : off+m.pageSize : off+m.pageSize], nil
}

func (m *MemoryFile) WritePage(id PageID, data []byte) error {
	if err := checkSize(data, m.pageSize); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if int(id) >= m.numPages {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	page := m.slab[int(id)*m.pageSize : (int(id)+1)*m.pageSize]
	n := copy(page, data)
	clear(page[n:])
	return nil
}

func (m *MemoryFile) AllocatePage() (PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	id := PageID(m.numPages)
	m.slab = append(m.slab, make([]byte, m.pageSize)...)
	m.numPages++
	return id, nil
}

func (m *MemoryFile) PageSize() int { return m.pageSize }

func (m *MemoryFile) NumPages() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.numPages
}

func (m *MemoryFile) Sync() error { return nil }

func (m *MemoryFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.slab = nil
	return nil
}
