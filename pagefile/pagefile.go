package pagefile

import (
	"errors"
	"fmt"
)

// PageID addresses a page of a PageFile.
type PageID uint32

var (
	// ErrReadOnly is returned by writes to a read-only page file.
	ErrReadOnly = errors.New("pagefile: read-only")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pagefile: closed")
	// ErrPageNotFound is returned for pages that were never allocated.
	ErrPageNotFound = errors.New("pagefile: page not found")
)

// PageFile stores fixed-size pages.
type PageFile interface {
	// ReadPage returns the content of page id. The returned slice must be
	// treated as read-only and may be reused by the next write of that page.
	ReadPage(id PageID) ([]byte, error)
	// WritePage replaces page id with data. len(data) must not exceed PageSize;
	// shorter data is zero padded.
	WritePage(id PageID, data []byte) error
	// AllocatePage appends a zeroed page and returns its id.
	AllocatePage() (PageID, error)
	// PageSize returns the page size in bytes.
	PageSize() int
	// NumPages returns the number of allocated pages.
	NumPages() int
	Sync() error
	Close() error
}

func checkSize(data []byte, pageSize int) error {
	if len(data) > pageSize {
		return fmt.Errorf("pagefile: data size %d exceeds page size %d", len(data), pageSize)
	}
	return nil
}

var (
	_ PageFile = (*MemoryFile)(nil)
	_ PageFile = (*DiskFile)(nil)
	_ PageFile = (*MappedFile)(nil)
)
