package mtree

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/internal/resource"
	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

// Config configures a Tree.
type Config struct {
	// KMax is the largest k supported by reverse kNN queries. When opening an
	// existing page file, 0 means "take it from the header".
	KMax int

	// CacheNodes is the number of decoded nodes kept in memory. 0 disables
	// the node cache.
	CacheNodes int

	// IntegrityChecks validates the tree structure after every insertion and
	// logs every inconsistency at warn level.
	IntegrityChecks bool

	Logger    *slog.Logger
	Resources *resource.Controller
}

// Tree is a paged MkMax tree.
type Tree struct {
	store    *store
	oracle   distance.Oracle
	kMax     int
	caps     Capacity
	pageSize int
	rootKnn  float64

	// indexed holds every object in the tree, pending every object whose
	// kNN distance is undefined or not known to be tight.
	indexed *roaring.Bitmap
	pending *roaring.Bitmap
	// loose is set while pending holds finite bounds that may be loose.
	loose bool

	logger *slog.Logger
	rc     *resource.Controller
	checks bool
}

// step is one level of an insertion path. index is the position of the entry
// pointing to page inside the previous step's node.
type step struct {
	page    pagefile.PageID
	index   int
	routing model.ID
	routed  bool
}

// Create initializes an empty tree in pf, which must not contain any page.
func Create(pf pagefile.PageFile, oracle distance.Oracle, cfg Config) (*Tree, error) {
	if cfg.KMax < 1 {
		return nil, ErrInvalidKMax
	}
	if pf.NumPages() != 0 {
		return nil, fmt.Errorf("%w: page file is not empty", ErrHeaderMismatch)
	}

	t, err := newTree(pf, oracle, cfg)
	if err != nil {
		return nil, err
	}
	t.kMax = cfg.KMax

	if _, err := pf.AllocatePage(); err != nil {
		return nil, err
	}
	root, err := t.store.allocate(true)
	if err != nil {
		return nil, err
	}
	if root.ID != rootPage {
		return nil, fmt.Errorf("mtree: root allocated on page %d", root.ID)
	}
	if err := t.store.write(root); err != nil {
		return nil, err
	}
	if err := t.writeHeader(); err != nil {
		return nil, err
	}

	t.logger.Debug("tree created",
		"page_size", t.pageSize,
		"dir_capacity", t.caps.Directory,
		"leaf_capacity", t.caps.Leaf,
		"k_max", t.kMax)
	return t, nil
}

// Load opens the tree stored in pf.
func Load(pf pagefile.PageFile, oracle distance.Oracle, cfg Config) (*Tree, error) {
	t, err := newTree(pf, oracle, cfg)
	if err != nil {
		return nil, err
	}

	h, err := t.store.readHeader()
	if err != nil {
		return nil, err
	}
	switch {
	case h.PageSize != t.pageSize:
		return nil, fmt.Errorf("%w: page size %d, file has %d", ErrHeaderMismatch, t.pageSize, h.PageSize)
	case h.Capacity != t.caps:
		return nil, fmt.Errorf("%w: capacities %+v, file has %+v", ErrHeaderMismatch, t.caps, h.Capacity)
	case cfg.KMax != 0 && cfg.KMax != h.KMax:
		return nil, fmt.Errorf("%w: k_max %d, file has %d", ErrHeaderMismatch, cfg.KMax, h.KMax)
	case h.KMax < 1:
		return nil, ErrInvalidKMax
	}
	t.kMax = h.KMax
	t.rootKnn = h.RootKnn

	if err := t.scanLeaves(rootPage); err != nil {
		return nil, err
	}
	if n := t.indexed.GetCardinality(); n != h.Size {
		return nil, fmt.Errorf("%w: header counts %d objects, leaves hold %d", ErrCorruptPage, h.Size, n)
	}
	if h.Loose {
		t.pending.Or(t.indexed)
		t.loose = true
	}

	t.logger.Debug("tree loaded", "objects", h.Size, "k_max", t.kMax, "pending", t.pending.GetCardinality())
	return t, nil
}

func newTree(pf pagefile.PageFile, oracle distance.Oracle, cfg Config) (*Tree, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	caps, err := PlanCapacity(pf.PageSize(), logger)
	if err != nil {
		return nil, err
	}

	return &Tree{
		store:    newStore(pf, caps, cfg.CacheNodes, cfg.Resources),
		oracle:   oracle,
		caps:     caps,
		pageSize: pf.PageSize(),
		rootKnn:  distance.Null,
		indexed:  roaring.New(),
		pending:  roaring.New(),
		logger:   logger,
		rc:       cfg.Resources,
		checks:   cfg.IntegrityChecks,
	}, nil
}

// scanLeaves rebuilds the indexed and pending sets.
func (t *Tree) scanLeaves(page pagefile.PageID) error {
	node, err := t.store.read(page)
	if err != nil {
		return err
	}
	for i := range node.Entries {
		e := &node.Entries[i]
		if !node.Leaf {
			if err := t.scanLeaves(e.Child); err != nil {
				return err
			}
			continue
		}
		t.indexed.Add(uint32(e.RoutingID))
		if distance.IsUndefined(e.KnnDistance) {
			t.pending.Add(uint32(e.RoutingID))
		}
	}
	return nil
}

// KMax returns the largest supported k.
func (t *Tree) KMax() int { return t.kMax }

// Capacity returns the node capacities.
func (t *Tree) Capacity() Capacity { return t.caps }

// Len returns the number of indexed objects.
func (t *Tree) Len() int { return int(t.indexed.GetCardinality()) }

// Contains reports whether id is indexed.
func (t *Tree) Contains(id model.ID) bool { return t.indexed.Contains(uint32(id)) }

// IDs returns a copy of the set of indexed ids.
func (t *Tree) IDs() *roaring.Bitmap { return t.indexed.Clone() }

// Pending returns the number of objects with an undefined or loose bound.
func (t *Tree) Pending() int { return int(t.pending.GetCardinality()) }

// RootKnnDistance returns the kNN distance bound of the whole tree.
func (t *Tree) RootKnnDistance() float64 { return t.rootKnn }

// KnnDistance returns the kNN distance bound stored in the leaf entry of id.
// ok is false when id is not indexed.
func (t *Tree) KnnDistance(id model.ID) (knn float64, ok bool, err error) {
	if !t.Contains(id) {
		return 0, false, nil
	}
	return t.leafBound(rootPage, id)
}

func (t *Tree) leafBound(page pagefile.PageID, id model.ID) (float64, bool, error) {
	node, err := t.store.read(page)
	if err != nil {
		return 0, false, err
	}
	for i := range node.Entries {
		e := &node.Entries[i]
		if node.Leaf {
			if e.RoutingID == id {
				return e.KnnDistance, true, nil
			}
			continue
		}
		if knn, ok, err := t.leafBound(e.Child, id); err != nil || ok {
			return knn, ok, err
		}
	}
	return 0, false, nil
}

// Insert adds id and keeps every kNN distance bound tight.
func (t *Tree) Insert(ctx context.Context, id model.ID) error {
	if t.Contains(id) {
		return fmt.Errorf("%w: %d", ErrDuplicate, id)
	}
	if err := t.insert(ctx, id, true); err != nil {
		return err
	}
	if err := t.writeHeader(); err != nil {
		return err
	}
	if t.checks {
		t.logInconsistencies(ctx, t.checkStructure())
	}
	return nil
}

// insert places a new leaf entry for id. With preInsert the bounds of the
// new entry and of every existing entry it affects are refined; without it
// the new entry starts with an undefined bound.
func (t *Tree) insert(ctx context.Context, id model.ID, withPreInsert bool) error {
	path, err := t.choosePath(id)
	if err != nil {
		return err
	}

	entry := NewLeafEntry(id, t.parentDistance(path[len(path)-1], id))
	if withPreInsert {
		if err := t.preInsert(ctx, &entry); err != nil {
			return err
		}
	}

	leaf, err := t.store.read(path[len(path)-1].page)
	if err != nil {
		return err
	}
	leaf.Entries = append(leaf.Entries, entry)

	t.indexed.Add(uint32(id))
	if distance.IsUndefined(entry.KnnDistance) {
		t.pending.Add(uint32(id))
	}

	return t.adjustTree(path, leaf)
}

// choosePath descends from the root to the leaf that receives id. At each
// level it prefers the nearest entry whose covering radius already contains
// id, and otherwise the entry needing the smallest radius enlargement.
func (t *Tree) choosePath(id model.ID) ([]step, error) {
	path := []step{{page: rootPage, index: -1}}

	node, err := t.store.read(rootPage)
	if err != nil {
		return nil, err
	}

	for !node.Leaf {
		best := -1
		bestDist := math.Inf(1)
		bestEnlargement := math.Inf(1)
		covered := false

		for i := range node.Entries {
			e := &node.Entries[i]
			d := t.oracle.Distance(e.RoutingID, id)
			if d <= e.CoveringRadius {
				if !covered || d < bestDist {
					covered = true
					best, bestDist = i, d
				}
				continue
			}
			if !covered {
				if enl := d - e.CoveringRadius; enl < bestEnlargement {
					best, bestDist, bestEnlargement = i, d, enl
				}
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("%w: empty directory node %d", ErrCorruptPage, node.ID)
		}

		e := &node.Entries[best]
		path = append(path, step{page: e.Child, index: best, routing: e.RoutingID, routed: true})
		if node, err = t.store.read(e.Child); err != nil {
			return nil, err
		}
	}
	return path, nil
}

// parentDistance returns the distance between id and the routing object of
// the node at s, or NaN for the root node.
func (t *Tree) parentDistance(s step, id model.ID) float64 {
	if !s.routed {
		return math.NaN()
	}
	return t.oracle.Distance(s.routing, id)
}

func (t *Tree) writeHeader() error {
	return t.store.writeHeader(&header{
		PageSize: t.pageSize,
		Capacity: t.caps,
		KMax:     t.kMax,
		Size:     t.indexed.GetCardinality(),
		RootKnn:  t.rootKnn,
		Loose:    t.loose,
	})
}

// Sync flushes the page file.
func (t *Tree) Sync() error { return t.store.pf.Sync() }

// Close releases the node cache and closes the page file.
func (t *Tree) Close() error { return t.store.close() }
