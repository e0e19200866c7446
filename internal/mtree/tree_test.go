package mtree

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/internal/resource"
	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

func TestTree_InsertMatchesBruteForce(t *testing.T) {
	const (
		n    = 300
		kMax = 5
	)
	points := randomPoints(n+20, 2, 42)
	oracle := euclideanOracle(points)
	tree := newTestTree(t, oracle, Config{KMax: kMax, CacheNodes: 16})

	ids := idRange(0, n)
	insertEach(t, tree, ids)

	require.Equal(t, n, tree.Len())
	assert.Zero(t, tree.Pending())

	stats, err := tree.Stats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Height, 3)
	assert.Equal(t, n, stats.Objects)

	issues, err := tree.Validate(t.Context())
	require.NoError(t, err)
	assert.Empty(t, issues)

	for id, knn := range leafBounds(t, tree) {
		assert.Equal(t, bruteKDistance(oracle, ids, id, kMax), knn, "bound of %d", id)
	}

	// Indexed queries and queries from outside the tree.
	queries := append(idRange(0, 20), idRange(n, n+10)...)
	for _, q := range queries {
		for _, k := range []int{1, 3, kMax} {
			got, _, err := tree.ReverseKNN(t.Context(), q, k)
			require.NoError(t, err)
			requireNeighbors(t, bruteRkNN(oracle, ids, q, k), got, "RkNN q=%d k=%d", q, k)

			knn, err := tree.KNN(t.Context(), q, k)
			require.NoError(t, err)
			requireNeighbors(t, bruteKNN(oracle, ids, q, k), knn, "kNN q=%d k=%d", q, k)
		}

		got, err := tree.Range(t.Context(), q, 7.5)
		require.NoError(t, err)
		requireNeighbors(t, bruteRange(oracle, ids, q, 7.5), got, "range q=%d", q)
	}
}

func TestTree_ReverseKNNUsesTightBounds(t *testing.T) {
	points := randomPoints(200, 3, 7)
	oracle := distance.NewCounting(euclideanOracle(points))
	tree := newTestTree(t, oracle, Config{KMax: 4})
	insertEach(t, tree, idRange(0, 200))

	_, stats, err := tree.ReverseKNN(t.Context(), 10, 4)
	require.NoError(t, err)
	assert.Zero(t, stats.Refined, "no refinement needed at k_max")
	assert.Positive(t, stats.Candidates)

	_, stats, err = tree.ReverseKNN(t.Context(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, stats.Candidates-1, stats.Refined, "every candidate except q is refined below k_max")
}

func TestTree_GridCentroidTightensBounds(t *testing.T) {
	const kMax = 5
	points := append(gridPoints(10), []float64{4.5, 4.5})
	oracle := euclideanOracle(points)
	tree := newTestTree(t, oracle, Config{KMax: kMax})

	ids := idRange(0, 100)
	insertEach(t, tree, ids)

	// (4,4) has four neighbors at 1 and four at sqrt 2.
	corner := model.ID(4*10 + 4)
	assert.Equal(t, math.Sqrt2, leafBounds(t, tree)[corner])

	rknn, _, err := tree.ReverseKNN(t.Context(), 100, kMax)
	require.NoError(t, err)
	assert.Len(t, rknn, 4, "the four surrounding grid points")

	centroid := model.ID(100)
	require.NoError(t, tree.Insert(t.Context(), centroid))
	ids = append(ids, centroid)

	bounds := leafBounds(t, tree)
	assert.Equal(t, 1.0, bounds[corner])
	assert.Equal(t, bruteKDistance(oracle, ids, centroid, kMax), bounds[centroid])

	rknn, _, err = tree.ReverseKNN(t.Context(), centroid, kMax)
	require.NoError(t, err)
	requireNeighbors(t, bruteRkNN(oracle, ids, centroid, kMax), rknn)
	assert.Len(t, rknn, 5, "the centroid and its four surrounding grid points")

	issues, err := tree.Validate(t.Context())
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestTree_InsertAllMatchesInsert(t *testing.T) {
	const kMax = 6
	points := randomPoints(250, 2, 3)
	oracle := euclideanOracle(points)

	single := newTestTree(t, oracle, Config{KMax: kMax})
	insertEach(t, single, idRange(0, 250))

	rc := resource.NewController(resource.Config{Workers: 4})
	batch := newTestTree(t, oracle, Config{KMax: kMax, CacheNodes: 8, Resources: rc})
	require.NoError(t, batch.InsertAll(t.Context(), idRange(0, 3)))
	assert.Equal(t, 3, batch.Pending(), "bounds stay undefined below k_max+1 objects")
	require.NoError(t, batch.InsertAll(t.Context(), idRange(3, 100)))
	require.NoError(t, batch.InsertAll(t.Context(), idRange(100, 250)))

	assert.Zero(t, batch.Pending())
	assert.Equal(t, leafBounds(t, single), leafBounds(t, batch))
	assert.Equal(t, single.RootKnnDistance(), batch.RootKnnDistance())

	issues, err := batch.Validate(t.Context())
	require.NoError(t, err)
	assert.Empty(t, issues)

	ids := idRange(0, 250)
	for _, q := range idRange(0, 15) {
		got, _, err := batch.ReverseKNN(t.Context(), q, kMax)
		require.NoError(t, err)
		requireNeighbors(t, bruteRkNN(oracle, ids, q, kMax), got, "q=%d", q)
	}
}

func TestTree_Adjust(t *testing.T) {
	points := randomPoints(60, 2, 11)
	tree := newTestTree(t, euclideanOracle(points), Config{KMax: 3})

	insertEach(t, tree, idRange(0, 3))
	assert.Equal(t, 3, tree.Pending())

	n, err := tree.Adjust(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, tree.Pending(), "two other objects cannot define a 3-NN distance")

	insertEach(t, tree, idRange(3, 60))
	assert.Zero(t, tree.Pending())

	before := leafBounds(t, tree)
	stats, err := tree.Stats()
	require.NoError(t, err)

	n, err = tree.Adjust(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)

	after, err := tree.Stats()
	require.NoError(t, err)
	assert.Equal(t, before, leafBounds(t, tree))
	assert.Equal(t, stats.PageWrites, after.PageWrites, "nothing to repair")
}

func TestTree_Persistence(t *testing.T) {
	const kMax = 4
	points := randomPoints(160, 2, 5)
	oracle := euclideanOracle(points)
	path := filepath.Join(t.TempDir(), "tree.pages")

	pf, err := pagefile.OpenDiskFile(path, smallPage)
	require.NoError(t, err)
	tree, err := Create(pf, oracle, Config{KMax: kMax, CacheNodes: 32})
	require.NoError(t, err)
	insertEach(t, tree, idRange(0, 150))

	want, _, err := tree.ReverseKNN(t.Context(), 17, kMax)
	require.NoError(t, err)
	bounds := leafBounds(t, tree)

	require.NoError(t, tree.Sync())
	require.NoError(t, tree.Close())

	t.Run("disk", func(t *testing.T) {
		pf, err := pagefile.OpenDiskFile(path, smallPage)
		require.NoError(t, err)
		loaded, err := Load(pf, oracle, Config{})
		require.NoError(t, err)
		defer loaded.Close()

		assert.Equal(t, kMax, loaded.KMax())
		assert.Equal(t, 150, loaded.Len())
		assert.Equal(t, bounds, leafBounds(t, loaded))

		got, _, err := loaded.ReverseKNN(t.Context(), 17, kMax)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		require.NoError(t, loaded.Insert(t.Context(), 150), "a loaded tree stays writable")
	})

	t.Run("mapped", func(t *testing.T) {
		pf, err := pagefile.OpenMappedFile(path, smallPage)
		require.NoError(t, err)
		loaded, err := Load(pf, oracle, Config{KMax: kMax})
		require.NoError(t, err)
		defer loaded.Close()

		issues, err := loaded.Validate(t.Context())
		require.NoError(t, err)
		assert.Empty(t, issues)

		knn, err := loaded.KNN(t.Context(), 3, 5)
		require.NoError(t, err)
		assert.Len(t, knn, 5)
	})

	t.Run("mismatch", func(t *testing.T) {
		pf, err := pagefile.OpenDiskFile(path, smallPage)
		require.NoError(t, err)
		defer pf.Close()
		_, err = Load(pf, oracle, Config{KMax: kMax + 1})
		assert.ErrorIs(t, err, ErrHeaderMismatch)
	})
}

func TestTree_LoadAfterUnfinishedBatch(t *testing.T) {
	points := randomPoints(60, 2, 9)
	oracle := euclideanOracle(points)
	pf := pagefile.NewMemoryFile(smallPage)

	tree, err := Create(pf, oracle, Config{KMax: 3})
	require.NoError(t, err)
	insertEach(t, tree, idRange(0, 60))
	want := leafBounds(t, tree)

	// Simulate a batch insert that stopped before its adjustment.
	tree.loose = true
	require.NoError(t, tree.writeHeader())

	loaded, err := Load(pf, oracle, Config{})
	require.NoError(t, err)
	assert.Equal(t, 60, loaded.Pending(), "every bound is suspect")

	n, err := loaded.Adjust(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 60, n)
	assert.Zero(t, loaded.Pending())
	assert.Equal(t, want, leafBounds(t, loaded))

	reloaded, err := Load(pf, oracle, Config{})
	require.NoError(t, err)
	assert.Zero(t, reloaded.Pending())
}

func TestTree_InsertNeverRaisesExistingBounds(t *testing.T) {
	points := randomPoints(150, 2, 17)
	oracle := euclideanOracle(points)
	tree := newTestTree(t, oracle, Config{KMax: 4, CacheNodes: 8})

	for i := range points {
		id := model.ID(i)
		before := leafBounds(t, tree)
		require.NoError(t, tree.Insert(t.Context(), id))
		after := leafBounds(t, tree)

		for other, b := range before {
			if math.IsInf(b, 1) {
				continue
			}
			assert.LessOrEqualf(t, after[other], b, "bound of %d grew when %d was inserted", other, id)
		}

		knn, ok, err := tree.KnnDistance(id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, after[id], knn)
	}

	_, ok, err := tree.KnnDistance(model.ID(len(points)))
	require.NoError(t, err)
	assert.False(t, ok)
}

var (
	errPageWrite   = errors.New("page write failed")
	errHeaderWrite = errors.New("header write failed")
)

// failingPageFile fails every write once armed, except for headerWrites
// more writes of the header page.
type failingPageFile struct {
	pagefile.PageFile
	armed        bool
	headerWrites int
}

func (f *failingPageFile) WritePage(id pagefile.PageID, data []byte) error {
	if f.armed {
		if id != headerPage {
			return errPageWrite
		}
		if f.headerWrites == 0 {
			return errHeaderWrite
		}
		f.headerWrites--
	}
	return f.PageFile.WritePage(id, data)
}

func TestTree_InsertAllReportsHeaderFailure(t *testing.T) {
	points := randomPoints(41, 2, 5)
	points[40] = append([]float64(nil), points[0]...)
	oracle := euclideanOracle(points)
	pf := &failingPageFile{PageFile: pagefile.NewMemoryFile(smallPage)}

	tree, err := Create(pf, oracle, Config{KMax: 3})
	require.NoError(t, err)
	insertEach(t, tree, idRange(0, 40))

	// The batch marks the header loose, then its first node write fails.
	pf.armed = true
	pf.headerWrites = 1
	err = tree.InsertAll(t.Context(), []model.ID{40})
	require.Error(t, err)
	assert.ErrorIs(t, err, errPageWrite)
	assert.ErrorIs(t, err, errHeaderWrite)
}

func TestTree_Errors(t *testing.T) {
	points := randomPoints(20, 2, 1)
	oracle := euclideanOracle(points)

	_, err := Create(pagefile.NewMemoryFile(smallPage), oracle, Config{})
	assert.ErrorIs(t, err, ErrInvalidKMax)

	_, err = Create(pagefile.NewMemoryFile(32), oracle, Config{KMax: 2})
	var pts *PageTooSmallError
	assert.ErrorAs(t, err, &pts)

	tree := newTestTree(t, oracle, Config{KMax: 2})
	insertEach(t, tree, idRange(0, 10))

	assert.ErrorIs(t, tree.Insert(t.Context(), 4), ErrDuplicate)
	assert.ErrorIs(t, tree.InsertAll(t.Context(), []model.ID{12, 12}), ErrDuplicate)
	assert.ErrorIs(t, tree.InsertAll(t.Context(), []model.ID{11, 3}), ErrDuplicate)
	assert.Equal(t, 10, tree.Len(), "rejected batches insert nothing")

	var ike *InvalidKError
	_, _, err = tree.ReverseKNN(t.Context(), 1, 0)
	assert.ErrorAs(t, err, &ike)
	_, _, err = tree.ReverseKNN(t.Context(), 1, 3)
	require.ErrorAs(t, err, &ike)
	assert.Equal(t, 2, ike.KMax)

	_, err = tree.KNN(t.Context(), 1, 0)
	assert.ErrorAs(t, err, &ike)
}

func TestTree_SmallTrees(t *testing.T) {
	points := randomPoints(5, 2, 9)
	oracle := euclideanOracle(points)
	tree := newTestTree(t, oracle, Config{KMax: 3})

	got, _, err := tree.ReverseKNN(t.Context(), 0, 1)
	require.NoError(t, err)
	assert.Empty(t, got, "empty tree")

	insertEach(t, tree, idRange(0, 3))

	// With fewer than k other objects every object is a reverse neighbor.
	ids := idRange(0, 3)
	got, _, err = tree.ReverseKNN(t.Context(), 4, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	requireNeighbors(t, bruteRkNN(oracle, ids, 4, 3), got)

	knn, err := tree.KNN(t.Context(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, knn, 3)
	assert.Equal(t, model.Neighbor{ID: 0, Distance: 0}, knn[0])
}

func TestTree_ValidateDetectsBrokenBound(t *testing.T) {
	points := randomPoints(80, 2, 21)
	tree := newTestTree(t, euclideanOracle(points), Config{KMax: 3})
	insertEach(t, tree, idRange(0, 80))

	leaf := findLeaf(t, tree)
	leaf.Entries[0].KnnDistance = 0
	require.NoError(t, tree.store.write(leaf))

	issues, err := tree.Validate(t.Context())
	require.NoError(t, err)

	var kinds []InconsistencyKind
	for _, inc := range issues {
		kinds = append(kinds, inc.Kind)
	}
	assert.Contains(t, kinds, KindLeafBound)
}

func TestTree_IntegrityChecksLogNothingOnHealthyTree(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	points := randomPoints(120, 2, 13)
	tree := newTestTree(t, euclideanOracle(points), Config{KMax: 4, IntegrityChecks: true, Logger: logger})
	insertEach(t, tree, idRange(0, 60))
	require.NoError(t, tree.InsertAll(t.Context(), idRange(60, 120)))

	assert.NotContains(t, buf.String(), "tree inconsistency")
}
