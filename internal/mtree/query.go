package mtree

import (
	"context"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mkmax/internal/queue"
	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

// KNN returns the k nearest indexed objects of q, q itself included when it
// is indexed. Objects tied with the k-th distance are returned as well.
func (t *Tree) KNN(ctx context.Context, q model.ID, k int) ([]model.Neighbor, error) {
	if k < 1 {
		return nil, &InvalidKError{K: k, KMax: t.kMax}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	knns := queue.NewKNNHeap(k)
	if err := t.knnSearch(q, knns, false); err != nil {
		return nil, err
	}
	return knns.Neighbors(), nil
}

// knnSearch runs a best-first kNN traversal for q into knns, which may
// already hold candidates. With excludeSelf the leaf entry of q is skipped.
func (t *Tree) knnSearch(q model.ID, knns *queue.KNNHeap, excludeSelf bool) error {
	pq := queue.NewFrontier(32)
	pq.Push(queue.Subtree{Page: uint32(rootPage), RoutingDist: math.NaN()})

	for pq.Len() > 0 {
		it, _ := pq.Pop()
		if it.MinDist > knns.KDistance() {
			break
		}

		node, err := t.store.read(pagefile.PageID(it.Page))
		if err != nil {
			return err
		}

		for i := range node.Entries {
			e := &node.Entries[i]
			if node.Leaf && excludeSelf && e.RoutingID == q {
				continue
			}

			kdist := knns.KDistance()
			if prunedByParent(node.Leaf, it.RoutingDist, e, kdist) {
				continue
			}

			d := t.oracle.Distance(e.RoutingID, q)
			if node.Leaf {
				knns.Add(e.RoutingID, d)
				continue
			}
			if minDist := math.Max(d-e.CoveringRadius, 0); minDist <= kdist {
				pq.Push(queue.Subtree{Page: uint32(e.Child), MinDist: minDist, RoutingDist: d})
			}
		}
	}
	return nil
}

// prunedByParent reports whether the triangle inequality over the parent
// routing object proves that e is farther than radius from the query.
// dq is the query's distance to the parent routing object.
func prunedByParent(leaf bool, dq float64, e *Entry, radius float64) bool {
	if math.IsNaN(dq) || math.IsNaN(e.ParentDistance) {
		return false
	}
	lb := math.Abs(dq - e.ParentDistance)
	if !leaf {
		lb -= e.CoveringRadius
	}
	return lb > radius
}

// Range returns every indexed object within radius of q.
func (t *Tree) Range(ctx context.Context, q model.ID, radius float64) ([]model.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []model.Neighbor
	if err := t.rangeSearch(rootPage, q, radius, math.NaN(), &out); err != nil {
		return nil, err
	}
	slices.SortFunc(out, model.CompareNeighbors)
	return out, nil
}

func (t *Tree) rangeSearch(page pagefile.PageID, q model.ID, radius, dq float64, out *[]model.Neighbor) error {
	node, err := t.store.read(page)
	if err != nil {
		return err
	}
	for i := range node.Entries {
		e := &node.Entries[i]
		if prunedByParent(node.Leaf, dq, e, radius) {
			continue
		}
		d := t.oracle.Distance(e.RoutingID, q)
		if node.Leaf {
			if d <= radius {
				*out = append(*out, model.Neighbor{ID: e.RoutingID, Distance: d})
			}
			continue
		}
		if d <= radius+e.CoveringRadius {
			if err := t.rangeSearch(e.Child, q, radius, d, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// batchKNN computes the k nearest other objects of every id. The ids are
// split into one chunk per worker; each chunk is answered by a single
// depth-first traversal shared by all its queries.
func (t *Tree) batchKNN(ctx context.Context, ids []model.ID, k int) (map[model.ID]*queue.KNNHeap, error) {
	heaps := make(map[model.ID]*queue.KNNHeap, len(ids))
	for _, id := range ids {
		heaps[id] = queue.NewKNNHeap(k)
	}
	if len(ids) == 0 {
		return heaps, nil
	}

	workers := min(t.rc.Workers(), len(ids))
	chunk := (len(ids) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(ids); start += chunk {
		part := ids[start:min(start+chunk, len(ids))]
		g.Go(func() error {
			release, err := t.rc.Worker(gctx)
			if err != nil {
				return err
			}
			defer release()
			return t.batchNN(gctx, rootPage, part, heaps)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return heaps, nil
}

// batchNN answers all queries of ids in one traversal. Subtrees are visited
// in ascending order of their smallest min-distance to any query and skipped
// once no query can improve from them.
func (t *Tree) batchNN(ctx context.Context, page pagefile.PageID, ids []model.ID, heaps map[model.ID]*queue.KNNHeap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node, err := t.store.read(page)
	if err != nil {
		return err
	}

	if node.Leaf {
		for i := range node.Entries {
			p := node.Entries[i].RoutingID
			for _, q := range ids {
				if p == q {
					continue
				}
				heaps[q].Add(p, t.oracle.Distance(p, q))
			}
		}
		return nil
	}

	for _, c := range t.sortedEntries(node, ids) {
		sd := 0.0
		for _, q := range ids {
			sd = math.Max(sd, heaps[q].KDistance())
		}
		if c.minDist <= sd {
			if err := t.batchNN(ctx, node.Entries[c.index].Child, ids, heaps); err != nil {
				return err
			}
		}
	}
	return nil
}

type sortedEntry struct {
	minDist float64
	index   int
}

// sortedEntries orders the entries of a directory node by their smallest
// min-distance to any of the queries.
func (t *Tree) sortedEntries(node *Node, queries []model.ID) []sortedEntry {
	out := make([]sortedEntry, len(node.Entries))
	for i := range node.Entries {
		e := &node.Entries[i]
		md := math.Inf(1)
		for _, q := range queries {
			d := t.oracle.Distance(e.RoutingID, q)
			md = math.Min(md, math.Max(d-e.CoveringRadius, 0))
		}
		out[i] = sortedEntry{minDist: md, index: i}
	}
	slices.SortFunc(out, func(a, b sortedEntry) int {
		switch {
		case a.minDist < b.minDist:
			return -1
		case a.minDist > b.minDist:
			return 1
		default:
			return a.index - b.index
		}
	})
	return out
}
