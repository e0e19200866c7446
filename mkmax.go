package mkmax

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/mkmax/blobstore"
	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/internal/mtree"
	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
	"github.com/hupe1980/mkmax/snapshot"
)

type (
	// ID identifies an object of the relation.
	ID = model.ID
	// Neighbor is a query result: an object and its distance to the query.
	Neighbor = model.Neighbor
	// Stats describes the shape and I/O counters of an index.
	Stats = mtree.Stats
	// Inconsistency is one violated tree invariant found by Validate.
	Inconsistency = mtree.Inconsistency
)

// Index is an MkMax tree over the objects of a relation.
//
// Index is safe for concurrent use: mutations are serialized, queries run
// in parallel with each other.
type Index[O any] struct {
	mu       sync.RWMutex
	rel      model.Relation[O]
	pf       pagefile.PageFile
	tree     *mtree.Tree
	readOnly bool
	closed   bool
	metrics  MetricsCollector
	logger   *Logger
}

type loadFunc func(pagefile.PageFile, distance.Oracle, mtree.Config) (*mtree.Tree, error)

// New creates an empty index supporting reverse kNN queries up to kMax.
//
// The tree lives in memory unless WithPath or WithPageFile is given; a
// configured page file must be empty.
func New[O any](rel model.Relation[O], fn distance.Func[O], kMax int, opts ...Option) (*Index[O], error) {
	if kMax < 1 {
		return nil, ErrInvalidKMax
	}
	o := applyOptions(opts)

	pf, err := openPageFile(o, true)
	if err != nil {
		return nil, err
	}
	create := func(pf pagefile.PageFile, oracle distance.Oracle, cfg mtree.Config) (*mtree.Tree, error) {
		cfg.KMax = kMax
		return mtree.Create(pf, oracle, cfg)
	}
	return newIndex(rel, fn, o, pf, false, create)
}

// Open reopens the index stored in the page file given by WithPath or
// WithPageFile. k_max and capacities are read from the file; the page size
// must match the one the file was created with.
func Open[O any](rel model.Relation[O], fn distance.Func[O], opts ...Option) (*Index[O], error) {
	o := applyOptions(opts)

	pf, err := openPageFile(o, false)
	if err != nil {
		return nil, err
	}
	return newIndex(rel, fn, o, pf, false, mtree.Load)
}

// OpenReadOnly maps the page file at path read-only. Queries work as usual;
// mutations return ErrReadOnly.
func OpenReadOnly[O any](rel model.Relation[O], fn distance.Func[O], path string, opts ...Option) (*Index[O], error) {
	o := applyOptions(opts)

	pf, err := pagefile.OpenMappedFile(path, o.pageSize)
	if err != nil {
		return nil, err
	}
	return newIndex(rel, fn, o, pf, true, mtree.Load)
}

// Restore creates an index from the snapshot name in store. The pages are
// loaded into memory, or into the empty page file given by WithPath or
// WithPageFile.
func Restore[O any](ctx context.Context, store blobstore.BlobStore, name string, rel model.Relation[O], fn distance.Func[O], opts ...Option) (*Index[O], error) {
	o := applyOptions(opts)

	var (
		pf   pagefile.PageFile
		info *snapshot.Info
		err  error
	)
	if o.pageFile == nil && o.path == "" {
		var mf *pagefile.MemoryFile
		mf, info, err = snapshot.Load(ctx, store, name)
		pf = mf
	} else {
		if pf, err = openPageFile(o, true); err != nil {
			return nil, err
		}
		if info, err = snapshot.LoadInto(ctx, store, name, pf); err != nil {
			_ = pf.Close()
		}
	}
	if err != nil {
		o.logger.LogSnapshot(ctx, "restore", name, err)
		return nil, translateError(err)
	}

	idx, err := newIndex(rel, fn, o, pf, false, mtree.Load)
	if err != nil {
		return nil, err
	}
	if info.IDs != nil && !info.IDs.Equals(idx.tree.IDs()) {
		_ = idx.Close()
		err = fmt.Errorf("%w: snapshot id section does not match the pages", ErrCorrupt)
		o.logger.LogSnapshot(ctx, "restore", name, err)
		return nil, err
	}
	o.logger.LogSnapshot(ctx, "restore", name, nil)
	return idx, nil
}

func openPageFile(o options, create bool) (pagefile.PageFile, error) {
	switch {
	case o.pageFile != nil:
		return o.pageFile, nil
	case o.path != "":
		return pagefile.OpenDiskFile(o.path, o.pageSize, pagefile.WithResourceController(o.rc))
	case create:
		return pagefile.NewMemoryFile(o.pageSize), nil
	default:
		return nil, ErrNoPageFile
	}
}

func newIndex[O any](rel model.Relation[O], fn distance.Func[O], o options, pf pagefile.PageFile, readOnly bool, load loadFunc) (*Index[O], error) {
	cfg := mtree.Config{
		CacheNodes:      o.cacheSize,
		IntegrityChecks: o.integrityChecks,
		Logger:          o.logger.Logger,
		Resources:       o.rc,
	}
	tree, err := load(pf, distance.NewOracle(rel, fn), cfg)
	if err != nil {
		_ = pf.Close()
		return nil, translateError(err)
	}

	return &Index[O]{
		rel:      rel,
		pf:       pf,
		tree:     tree,
		readOnly: readOnly,
		metrics:  o.metricsCollector,
		logger:   o.logger,
	}, nil
}

func (idx *Index[O]) checkOpen() error {
	if idx.closed {
		return ErrClosed
	}
	return nil
}

func (idx *Index[O]) checkWritable() error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	if idx.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (idx *Index[O]) checkObject(id ID) error {
	if _, ok := idx.rel.Get(id); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	return nil
}

// Insert adds the object id of the relation and updates every kNN distance
// bound it affects.
func (idx *Index[O]) Insert(ctx context.Context, id ID) (err error) {
	start := time.Now()
	defer func() {
		idx.metrics.RecordInsert(time.Since(start), err)
		idx.logger.LogInsert(ctx, id, err)
	}()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkWritable(); err != nil {
		return err
	}
	if err := idx.checkObject(id); err != nil {
		return err
	}
	return translateError(idx.tree.Insert(ctx, id))
}

// InsertAll inserts ids and recomputes the affected bounds once at the end,
// which is cheaper than inserting them one by one. Either all ids are new
// and known to the relation, or nothing is inserted.
func (idx *Index[O]) InsertAll(ctx context.Context, ids []ID) (err error) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		idx.metrics.RecordBatchInsert(len(ids), d, err)
		idx.logger.LogBatchInsert(ctx, len(ids), d, err)
	}()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkWritable(); err != nil {
		return err
	}
	for _, id := range ids {
		if err := idx.checkObject(id); err != nil {
			return err
		}
	}
	return translateError(idx.tree.InsertAll(ctx, ids))
}

// KNNQuery returns the k nearest indexed objects of id, ordered by distance,
// then id. Objects tied with the k-th distance are included, and so is id
// itself when it is indexed.
func (idx *Index[O]) KNNQuery(ctx context.Context, id ID, k int) (res []Neighbor, err error) {
	start := time.Now()
	defer func() {
		idx.metrics.RecordKNN(k, time.Since(start), err)
		idx.logger.LogKNN(ctx, id, k, len(res), err)
	}()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	if err := idx.checkObject(id); err != nil {
		return nil, err
	}
	res, err = idx.tree.KNN(ctx, id, k)
	return res, translateError(err)
}

// RangeQuery returns every indexed object within radius of id.
func (idx *Index[O]) RangeQuery(ctx context.Context, id ID, radius float64) (res []Neighbor, err error) {
	start := time.Now()
	defer func() {
		idx.metrics.RecordRange(len(res), time.Since(start), err)
	}()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	if err := idx.checkObject(id); err != nil {
		return nil, err
	}
	if radius < 0 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidRadius, radius)
	}
	res, err = idx.tree.Range(ctx, id, radius)
	return res, translateError(err)
}

// ReverseKNNQuery returns every indexed object that has id among its k
// nearest other objects, ordered by distance, then id. k must lie in
// [1, KMax()]. id itself is part of the answer when it is indexed.
func (idx *Index[O]) ReverseKNNQuery(ctx context.Context, id ID, k int) (res []Neighbor, err error) {
	start := time.Now()
	var stats mtree.RkNNStats
	defer func() {
		idx.metrics.RecordRkNN(k, stats.Candidates, len(res), time.Since(start), err)
		idx.logger.LogRkNN(ctx, id, k, stats.Candidates, stats.Refined, len(res), err)
	}()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	if err := idx.checkObject(id); err != nil {
		return nil, err
	}
	res, stats, err = idx.tree.ReverseKNN(ctx, id, k)
	return res, translateError(err)
}

// Adjust recomputes every pending kNN distance bound and returns how many
// were repaired.
func (idx *Index[O]) Adjust(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() {
		idx.metrics.RecordAdjust(n, time.Since(start), err)
		idx.logger.LogAdjust(ctx, n, err)
	}()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkWritable(); err != nil {
		return 0, err
	}
	n, err = idx.tree.Adjust(ctx)
	return n, translateError(err)
}

// Delete is not supported by the MkMax tree.
func (idx *Index[O]) Delete(context.Context, ID) error {
	return fmt.Errorf("%w: delete", ErrNotImplemented)
}

// DeleteAll is not supported by the MkMax tree.
func (idx *Index[O]) DeleteAll(context.Context, []ID) error {
	return fmt.Errorf("%w: delete", ErrNotImplemented)
}

// Validate checks every tree invariant, including that each leaf bound
// equals the exact kNN distance of its object, and returns the violations.
func (idx *Index[O]) Validate(ctx context.Context) ([]Inconsistency, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	issues, err := idx.tree.Validate(ctx)
	return issues, translateError(err)
}

// Stats walks the tree and returns its statistics.
func (idx *Index[O]) Stats() (Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.checkOpen(); err != nil {
		return Stats{}, err
	}
	s, err := idx.tree.Stats()
	return s, translateError(err)
}

// KMax returns the largest k supported by ReverseKNNQuery.
func (idx *Index[O]) KMax() int { return idx.tree.KMax() }

// Len returns the number of indexed objects.
func (idx *Index[O]) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// Contains reports whether id is indexed.
func (idx *Index[O]) Contains(id ID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Contains(id)
}

// Pending returns the number of objects whose bound is undefined or may be
// loose. Bounds are undefined while fewer than k_max+1 objects are indexed.
func (idx *Index[O]) Pending() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Pending()
}

// Snapshot writes all pages and the indexed id set to the blob name in
// store. Queries may run while the snapshot is taken.
func (idx *Index[O]) Snapshot(ctx context.Context, store blobstore.BlobStore, name string, opts ...snapshot.Option) (info *snapshot.Info, err error) {
	defer func() {
		idx.logger.LogSnapshot(ctx, "save", name, err)
	}()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	opts = append([]snapshot.Option{snapshot.WithIDs(idx.tree.IDs())}, opts...)
	return snapshot.Save(ctx, store, name, idx.pf, opts...)
}

// Sync flushes the page file to stable storage.
func (idx *Index[O]) Sync() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return err
	}
	return translateError(idx.tree.Sync())
}

// Close syncs and closes the page file, including one passed with
// WithPageFile. Close is idempotent.
func (idx *Index[O]) Close() error {
	if idx == nil {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true

	var firstErr error
	if !idx.readOnly {
		firstErr = idx.tree.Sync()
	}
	if err := idx.tree.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
