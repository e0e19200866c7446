package mtree

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

// smallPage yields leaf capacity 8 and directory capacity 5, so a few hundred
// objects already produce a tree of height three or more.
const smallPage = 160

func randomPoints(n, dim int, seed uint64) [][]float64 {
	r := rand.New(rand.NewPCG(seed, seed*31+7))
	points := make([][]float64, n)
	for i := range points {
		p := make([]float64, dim)
		for j := range p {
			p[j] = r.Float64() * 100
		}
		points[i] = p
	}
	return points
}

func gridPoints(side int) [][]float64 {
	points := make([][]float64, 0, side*side)
	for x := 0; x < side; x++ {
		for y := 0; y < side; y++ {
			points = append(points, []float64{float64(x), float64(y)})
		}
	}
	return points
}

func euclideanOracle(points [][]float64) distance.Oracle {
	return distance.NewOracle(model.NewSliceRelation(points), distance.Euclidean)
}

func newTestTree(t *testing.T, oracle distance.Oracle, cfg Config) *Tree {
	t.Helper()
	tree, err := Create(pagefile.NewMemoryFile(smallPage), oracle, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func idRange(from, to int) []model.ID {
	ids := make([]model.ID, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, model.ID(i))
	}
	return ids
}

func insertEach(t *testing.T, tree *Tree, ids []model.ID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, tree.Insert(t.Context(), id))
	}
}

// bruteKDistance returns the k-th smallest distance from p to the other
// indexed objects, +Inf when there are fewer than k of them.
func bruteKDistance(oracle distance.Oracle, indexed []model.ID, p model.ID, k int) float64 {
	ds := make([]float64, 0, len(indexed))
	for _, o := range indexed {
		if o != p {
			ds = append(ds, oracle.Distance(p, o))
		}
	}
	if len(ds) < k {
		return distance.Infinite
	}
	slices.Sort(ds)
	return ds[k-1]
}

func bruteKNN(oracle distance.Oracle, indexed []model.ID, q model.ID, k int) []model.Neighbor {
	all := make([]model.Neighbor, 0, len(indexed))
	for _, o := range indexed {
		all = append(all, model.Neighbor{ID: o, Distance: oracle.Distance(o, q)})
	}
	slices.SortFunc(all, model.CompareNeighbors)
	if len(all) <= k {
		return all
	}
	kd := all[k-1].Distance
	end := k
	for end < len(all) && all[end].Distance <= kd {
		end++
	}
	return all[:end]
}

func bruteRkNN(oracle distance.Oracle, indexed []model.ID, q model.ID, k int) []model.Neighbor {
	var out []model.Neighbor
	for _, p := range indexed {
		d := oracle.Distance(p, q)
		if p == q || d <= bruteKDistance(oracle, indexed, p, k) {
			out = append(out, model.Neighbor{ID: p, Distance: d})
		}
	}
	slices.SortFunc(out, model.CompareNeighbors)
	return out
}

func bruteRange(oracle distance.Oracle, indexed []model.ID, q model.ID, radius float64) []model.Neighbor {
	var out []model.Neighbor
	for _, o := range indexed {
		if d := oracle.Distance(o, q); d <= radius {
			out = append(out, model.Neighbor{ID: o, Distance: d})
		}
	}
	slices.SortFunc(out, model.CompareNeighbors)
	return out
}

// leafBounds collects the stored kNN distance of every indexed object.
func leafBounds(t *testing.T, tree *Tree) map[model.ID]float64 {
	t.Helper()
	out := make(map[model.ID]float64)
	var walk func(page pagefile.PageID)
	walk = func(page pagefile.PageID) {
		node, err := tree.store.read(page)
		require.NoError(t, err)
		for _, e := range node.Entries {
			if node.Leaf {
				out[e.RoutingID] = e.KnnDistance
				continue
			}
			walk(e.Child)
		}
	}
	walk(rootPage)
	return out
}

// findLeaf returns the first leaf node in depth-first order.
func findLeaf(t *testing.T, tree *Tree) *Node {
	t.Helper()
	page := rootPage
	for {
		node, err := tree.store.read(page)
		require.NoError(t, err)
		if node.Leaf {
			return node
		}
		page = node.Entries[0].Child
	}
}

func requireNeighbors(t *testing.T, want, got []model.Neighbor, msgAndArgs ...any) {
	t.Helper()
	if len(want) == 0 {
		require.Empty(t, got, msgAndArgs...)
		return
	}
	require.Equal(t, want, got, msgAndArgs...)
}
