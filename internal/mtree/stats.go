package mtree

import (
	"github.com/hupe1980/mkmax/pagefile"
)

// Stats is a snapshot of the tree shape and its I/O counters.
type Stats struct {
	Height         int
	DirectoryNodes int
	LeafNodes      int
	Objects        int
	Pending        int

	DirectoryCapacity int
	LeafCapacity      int
	KMax              int
	PageSize          int
	Pages             int

	RootKnnDistance float64

	CacheHits   int64
	CacheMisses int64
	PageReads   int64
	PageWrites  int64
}

// Stats walks the tree and collects its statistics.
func (t *Tree) Stats() (Stats, error) {
	s := Stats{
		Objects:           t.Len(),
		Pending:           t.Pending(),
		DirectoryCapacity: t.caps.Directory,
		LeafCapacity:      t.caps.Leaf,
		KMax:              t.kMax,
		PageSize:          t.pageSize,
		Pages:             t.store.pf.NumPages(),
		RootKnnDistance:   t.rootKnn,
	}
	if err := t.walkStats(rootPage, 1, &s); err != nil {
		return Stats{}, err
	}
	s.CacheHits, s.CacheMisses = t.store.cacheStats()
	s.PageReads = t.store.pageReads.Load()
	s.PageWrites = t.store.pageWrites.Load()
	return s, nil
}

func (t *Tree) walkStats(page pagefile.PageID, depth int, s *Stats) error {
	node, err := t.store.read(page)
	if err != nil {
		return err
	}
	s.Height = max(s.Height, depth)
	if node.Leaf {
		s.LeafNodes++
		return nil
	}
	s.DirectoryNodes++
	for i := range node.Entries {
		if err := t.walkStats(node.Entries[i].Child, depth+1, s); err != nil {
			return err
		}
	}
	return nil
}
