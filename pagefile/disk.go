package pagefile

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/mkmax/internal/fs"
	"github.com/hupe1980/mkmax/internal/resource"
)

// DiskOption configures a DiskFile.
type DiskOption func(*DiskFile)

// WithFileSystem sets the file system used to open the file.
func WithFileSystem(fsys fs.FileSystem) DiskOption {
	return func(d *DiskFile) { d.fsys = fsys }
}

// WithResourceController throttles page writes with the controller's IO limit.
func WithResourceController(rc *resource.Controller) DiskOption {
	return func(d *DiskFile) { d.rc = rc }
}

// DiskFile stores pages in a single file at offset id*pageSize.
type DiskFile struct {
	mu       sync.RWMutex
	fsys     fs.FileSystem
	rc       *resource.Controller
	file     fs.File
	path     string
	pageSize int
	numPages int
}

// OpenDiskFile opens or creates the page file at path.
func OpenDiskFile(path string, pageSize int, opts ...DiskOption) (*DiskFile, error) {
	d := &DiskFile{
		fsys:     fs.Default,
		path:     path,
		pageSize: pageSize,
	}
	for _, opt := range opts {
		opt(d)
	}

	file, err := d.fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pagefile: open %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("pagefile: stat %s: %w", path, err)
	}
	if stat.Size()%int64(pageSize) != 0 {
		_ = file.Close()
		return nil, fmt.Errorf("pagefile: %s: size %d is not a multiple of page size %d", path, stat.Size(), pageSize)
	}

	d.file = file
	d.numPages = int(stat.Size() / int64(pageSize))
	return d, nil
}

// Path returns the file path.
func (d *DiskFile) Path() string { return d.path }

func (d *DiskFile) ReadPage(id PageID) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.file == nil {
		return nil, ErrClosed
	}
	if int(id) >= d.numPages {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}

	page := make([]byte, d.pageSize)
	if _, err := d.file.ReadAt(page, int64(id)*int64(d.pageSize)); err != nil {
		return nil, fmt.Errorf("pagefile: read page %d: %w", id, err)
	}
	return page, nil
}

func (d *DiskFile) WritePage(id PageID, data []byte) error {
	if err := checkSize(data, d.pageSize); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return ErrClosed
	}
	if int(id) >= d.numPages {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	return d.writeAt(id, data)
}

func (d *DiskFile) AllocatePage() (PageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return 0, ErrClosed
	}
	id := PageID(d.numPages)
	if err := d.writeAt(id, nil); err != nil {
		return 0, err
	}
	d.numPages++
	return id, nil
}

// writeAt writes a full, zero padded page. Callers hold mu.
func (d *DiskFile) writeAt(id PageID, data []byte) error {
	page := data
	if len(page) != d.pageSize {
		page = make([]byte, d.pageSize)
		copy(page, data)
	}
	// Page writes are synchronous and carry no caller context.
	if err := d.rc.ThrottleWrite(context.Background(), d.pageSize); err != nil {
		return err
	}
	if _, err := d.file.WriteAt(page, int64(id)*int64(d.pageSize)); err != nil {
		return fmt.Errorf("pagefile: write page %d: %w", id, err)
	}
	return nil
}

func (d *DiskFile) PageSize() int { return d.pageSize }

func (d *DiskFile) NumPages() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.numPages
}

func (d *DiskFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return ErrClosed
	}
	return d.file.Sync()
}

// Close syncs and closes the file. It is idempotent.
func (d *DiskFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}
	err := d.file.Sync()
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	d.file = nil
	return err
}
