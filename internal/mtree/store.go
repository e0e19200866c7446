package mtree

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/mkmax/internal/cache"
	"github.com/hupe1980/mkmax/internal/resource"
	"github.com/hupe1980/mkmax/pagefile"
)

const (
	headerPage pagefile.PageID = 0
	rootPage   pagefile.PageID = 1
)

// store reads and writes nodes through an LRU of decoded nodes.
//
// Cached nodes are shared: readers must not modify them, and the single
// writer must write back every node it modifies.
type store struct {
	pf    pagefile.PageFile
	caps  Capacity
	cache *cache.LRU[pagefile.PageID, *Node] // nil disables caching
	buf   []byte                             // encode buffer, writer only

	pageReads  atomic.Int64
	pageWrites atomic.Int64
}

func newStore(pf pagefile.PageFile, caps Capacity, cacheNodes int, rc *resource.Controller) *store {
	s := &store{
		pf:   pf,
		caps: caps,
		buf:  make([]byte, pf.PageSize()),
	}
	if cacheNodes > 0 {
		pageSize := int64(pf.PageSize())
		s.cache = cache.NewLRU[pagefile.PageID, *Node](int64(cacheNodes)*pageSize, func(*Node) int64 { return pageSize }, rc)
	}
	return s
}

func (s *store) read(id pagefile.PageID) (*Node, error) {
	if s.cache != nil {
		if n, ok := s.cache.Get(id); ok {
			return n, nil
		}
	}

	page, err := s.pf.ReadPage(id)
	if err != nil {
		return nil, err
	}
	s.pageReads.Add(1)

	n, err := decodeNode(id, page)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(id, n)
	}
	return n, nil
}

// write stores n. Nodes that reached their capacity must be split first.
func (s *store) write(n *Node) error {
	if c := s.caps.of(n); len(n.Entries) >= c {
		return fmt.Errorf("mtree: node %d has %d entries, capacity %d", n.ID, len(n.Entries), c)
	}

	data, err := encodeNode(n, s.buf)
	if err != nil {
		return err
	}
	if err := s.pf.WritePage(n.ID, data); err != nil {
		return err
	}
	s.pageWrites.Add(1)

	if s.cache != nil {
		s.cache.Set(n.ID, n)
	}
	return nil
}

// allocate returns an empty node on a fresh page. The node is not written.
func (s *store) allocate(leaf bool) (*Node, error) {
	id, err := s.pf.AllocatePage()
	if err != nil {
		return nil, err
	}
	return &Node{ID: id, Leaf: leaf}, nil
}

func (s *store) readHeader() (*header, error) {
	page, err := s.pf.ReadPage(headerPage)
	if err != nil {
		return nil, err
	}
	return decodeHeader(page)
}

func (s *store) writeHeader(h *header) error {
	clear(s.buf)
	return s.pf.WritePage(headerPage, h.encode(s.buf))
}

func (s *store) cacheStats() (hits, misses int64) {
	if s.cache == nil {
		return 0, 0
	}
	return s.cache.Stats()
}

func (s *store) close() error {
	if s.cache != nil {
		s.cache.Clear()
	}
	return s.pf.Close()
}
