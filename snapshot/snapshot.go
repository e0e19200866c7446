package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/mkmax/blobstore"
	"github.com/hupe1980/mkmax/internal/hash"
	"github.com/hupe1980/mkmax/pagefile"
)

const (
	magic      = "MKSN"
	version    = 1
	headerSize = 32

	// DefaultPagesPerBlock is the number of pages compressed together.
	DefaultPagesPerBlock = 64
)

var (
	// ErrFormat is returned for blobs that are not snapshots.
	ErrFormat = errors.New("snapshot: invalid format")
	// ErrChecksum is returned when a section does not match its checksum.
	ErrChecksum = errors.New("snapshot: checksum mismatch")
	// ErrPageSize is returned when a target page file has a different page size.
	ErrPageSize = errors.New("snapshot: page size mismatch")
	// ErrNotEmpty is returned by LoadInto for page files that already hold pages.
	ErrNotEmpty = errors.New("snapshot: target page file is not empty")
)

// Options configures Save.
type Options struct {
	Compression   Compression
	PagesPerBlock int
	IDs           *roaring.Bitmap
}

// Option configures Save.
type Option func(*Options)

// WithCompression selects the block codec. Default: CompressionLZ4.
func WithCompression(c Compression) Option {
	return func(o *Options) { o.Compression = c }
}

// WithPagesPerBlock sets how many pages are compressed as one block.
func WithPagesPerBlock(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.PagesPerBlock = n
		}
	}
}

// WithIDs stores ids next to the pages.
func WithIDs(ids *roaring.Bitmap) Option {
	return func(o *Options) { o.IDs = ids }
}

// Info describes a snapshot.
type Info struct {
	PageSize    int
	NumPages    int
	Compression Compression
	// IDs is the stored id set, or nil when the snapshot has none.
	IDs *roaring.Bitmap
	// Size is the size of the blob in bytes.
	Size int64
}

// header layout (little endian):
//
//	magic [4] | version u16 | compression u8 | flags u8 |
//	pageSize u32 | numPages u32 | idsLen u32 | idsCRC u32 | pagesCRC u32 | headerCRC u32
type header struct {
	compression Compression
	flags       uint8
	pageSize    uint32
	numPages    uint32
	idsLen      uint32
	idsCRC      uint32
	pagesCRC    uint32
}

const flagIDs = 1

func (h *header) marshal() []byte {
	buf := make([]byte, headerSize)
	copy(buf, magic)
	binary.LittleEndian.PutUint16(buf[4:], version)
	buf[6] = byte(h.compression)
	buf[7] = h.flags
	binary.LittleEndian.PutUint32(buf[8:], h.pageSize)
	binary.LittleEndian.PutUint32(buf[12:], h.numPages)
	binary.LittleEndian.PutUint32(buf[16:], h.idsLen)
	binary.LittleEndian.PutUint32(buf[20:], h.idsCRC)
	binary.LittleEndian.PutUint32(buf[24:], h.pagesCRC)
	binary.LittleEndian.PutUint32(buf[28:], hash.CRC32C(buf[:28]))
	return buf
}

func parseHeader(buf []byte) (*header, error) {
	if len(buf) < headerSize || string(buf[:4]) != magic {
		return nil, ErrFormat
	}
	if v := binary.LittleEndian.Uint16(buf[4:]); v != version {
		return nil, fmt.Errorf("%w: version %d", ErrFormat, v)
	}
	if hash.CRC32C(buf[:28]) != binary.LittleEndian.Uint32(buf[28:]) {
		return nil, fmt.Errorf("%w: header", ErrChecksum)
	}
	h := &header{
		compression: Compression(buf[6]),
		flags:       buf[7],
		pageSize:    binary.LittleEndian.Uint32(buf[8:]),
		numPages:    binary.LittleEndian.Uint32(buf[12:]),
		idsLen:      binary.LittleEndian.Uint32(buf[16:]),
		idsCRC:      binary.LittleEndian.Uint32(buf[20:]),
		pagesCRC:    binary.LittleEndian.Uint32(buf[24:]),
	}
	if h.compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: compression %d", ErrFormat, h.compression)
	}
	if h.pageSize == 0 {
		return nil, fmt.Errorf("%w: page size 0", ErrFormat)
	}
	return h, nil
}

// Save writes every page of pf to the blob name. The page file must not be
// modified while Save runs.
func Save(ctx context.Context, store blobstore.BlobStore, name string, pf pagefile.PageFile, opts ...Option) (*Info, error) {
	o := Options{Compression: CompressionLZ4, PagesPerBlock: DefaultPagesPerBlock}
	for _, opt := range opts {
		opt(&o)
	}

	h := &header{
		compression: o.Compression,
		pageSize:    uint32(pf.PageSize()),
		numPages:    uint32(pf.NumPages()),
	}

	var ids []byte
	if o.IDs != nil {
		var buf bytes.Buffer
		if _, err := o.IDs.WriteTo(&buf); err != nil {
			return nil, err
		}
		ids = buf.Bytes()
		h.flags |= flagIDs
		h.idsLen = uint32(len(ids))
		h.idsCRC = hash.CRC32C(ids)
	}

	// First pass computes the page checksum that goes into the header.
	sum := hash.NewCRC32C()
	for id := range h.numPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := pf.ReadPage(pagefile.PageID(id))
		if err != nil {
			return nil, err
		}
		_, _ = sum.Write(page)
	}
	h.pagesCRC = sum.Sum32()

	w, err := store.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	size, err := writeBody(ctx, w, h, ids, pf, o)
	if err != nil {
		_ = blobstore.Abort(w)
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return &Info{
		PageSize:    int(h.pageSize),
		NumPages:    int(h.numPages),
		Compression: h.compression,
		IDs:         o.IDs,
		Size:        size,
	}, nil
}

func writeBody(ctx context.Context, w blobstore.WritableBlob, h *header, ids []byte, pf pagefile.PageFile, o Options) (int64, error) {
	if _, err := w.Write(h.marshal()); err != nil {
		return 0, err
	}
	if _, err := w.Write(ids); err != nil {
		return 0, err
	}

	bw := newBlockWriter(w, o.Compression, o.PagesPerBlock*int(h.pageSize))
	for id := range h.numPages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		page, err := pf.ReadPage(pagefile.PageID(id))
		if err != nil {
			return 0, err
		}
		if _, err := bw.Write(page); err != nil {
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	if err := w.Sync(); err != nil {
		return 0, err
	}
	return int64(headerSize+len(ids)) + bw.written, nil
}

// Load reads the snapshot name into a new in-memory page file.
func Load(ctx context.Context, store blobstore.BlobStore, name string) (*pagefile.MemoryFile, *Info, error) {
	data, err := readBlob(ctx, store, name)
	if err != nil {
		return nil, nil, err
	}
	h, err := parseHeader(data)
	if err != nil {
		return nil, nil, err
	}
	mf := pagefile.NewMemoryFile(int(h.pageSize))
	info, err := restore(ctx, data, h, mf)
	if err != nil {
		_ = mf.Close()
		return nil, nil, err
	}
	return mf, info, nil
}

// LoadInto reads the snapshot name into pf, which must be empty and use the
// snapshot's page size.
func LoadInto(ctx context.Context, store blobstore.BlobStore, name string, pf pagefile.PageFile) (*Info, error) {
	if pf.NumPages() != 0 {
		return nil, ErrNotEmpty
	}
	data, err := readBlob(ctx, store, name)
	if err != nil {
		return nil, err
	}
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	if int(h.pageSize) != pf.PageSize() {
		return nil, fmt.Errorf("%w: snapshot %d, file %d", ErrPageSize, h.pageSize, pf.PageSize())
	}
	info, err := restore(ctx, data, h, pf)
	if err != nil {
		return nil, err
	}
	return info, pf.Sync()
}

func readBlob(ctx context.Context, store blobstore.BlobStore, name string) ([]byte, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = blob.Close() }()
	return blobstore.ReadAll(ctx, blob)
}

func restore(ctx context.Context, data []byte, h *header, pf pagefile.PageFile) (*Info, error) {
	info := &Info{
		PageSize:    int(h.pageSize),
		NumPages:    int(h.numPages),
		Compression: h.compression,
		Size:        int64(len(data)),
	}

	body := data[headerSize:]
	if uint64(len(body)) < uint64(h.idsLen) {
		return nil, fmt.Errorf("%w: truncated id section", ErrFormat)
	}
	if h.flags&flagIDs != 0 {
		section := body[:h.idsLen]
		if hash.CRC32C(section) != h.idsCRC {
			return nil, fmt.Errorf("%w: ids", ErrChecksum)
		}
		info.IDs = roaring.New()
		if _, err := info.IDs.FromBuffer(section); err != nil {
			return nil, fmt.Errorf("%w: ids: %v", ErrFormat, err)
		}
		// FromBuffer aliases section.
		info.IDs = info.IDs.Clone()
	}
	body = body[h.idsLen:]

	pages, err := readBlocks(body, h.compression)
	if err != nil {
		return nil, fmt.Errorf("%w: pages: %v", ErrFormat, err)
	}
	pageSize := int(h.pageSize)
	if len(pages) != int(h.numPages)*pageSize {
		return nil, fmt.Errorf("%w: expected %d pages, got %d bytes", ErrFormat, h.numPages, len(pages))
	}
	if hash.CRC32C(pages) != h.pagesCRC {
		return nil, fmt.Errorf("%w: pages", ErrChecksum)
	}

	for i := range int(h.numPages) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := pf.AllocatePage()
		if err != nil {
			return nil, err
		}
		if int(id) != i {
			return nil, fmt.Errorf("snapshot: allocated page %d, expected %d", id, i)
		}
		if err := pf.WritePage(id, pages[i*pageSize:(i+1)*pageSize]); err != nil {
			return nil, err
		}
	}
	return info, nil
}
