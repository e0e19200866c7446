package mtree

import (
	"context"
	"math"
	"slices"

	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

// RkNNStats describes the work of one reverse kNN query.
type RkNNStats struct {
	Candidates int // objects passing the bound filter
	Refined    int // candidates checked with a kNN query
}

// ReverseKNN returns every indexed object that has q among its k nearest
// other objects, ordered by distance, then id. q itself is part of the
// result when it is indexed.
//
// Candidates are the objects p with dist(p, q) <= p's kNN distance bound.
// For k == k_max a tight bound makes a candidate an answer; candidates with
// a pending bound, and all candidates for k < k_max, are checked with a
// batch kNN query of size k.
func (t *Tree) ReverseKNN(ctx context.Context, q model.ID, k int) ([]model.Neighbor, RkNNStats, error) {
	var stats RkNNStats
	if k < 1 || k > t.kMax {
		return nil, stats, &InvalidKError{K: k, KMax: t.kMax}
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	var cands []model.Neighbor
	if err := t.rknnCandidates(rootPage, q, math.NaN(), &cands); err != nil {
		return nil, stats, err
	}
	stats.Candidates = len(cands)

	result := make([]model.Neighbor, 0, len(cands))
	var check []model.ID
	for _, c := range cands {
		switch {
		case c.ID == q:
			result = append(result, c)
		case k < t.kMax || t.pending.Contains(uint32(c.ID)):
			check = append(check, c.ID)
		default:
			result = append(result, c)
		}
	}

	if len(check) > 0 {
		heaps, err := t.batchKNN(ctx, check, k)
		if err != nil {
			return nil, stats, err
		}
		stats.Refined = len(check)
		for _, c := range cands {
			if h, ok := heaps[c.ID]; ok && c.Distance <= h.KDistance() {
				result = append(result, c)
			}
		}
	}

	slices.SortFunc(result, model.CompareNeighbors)
	return result, stats, nil
}

// rknnCandidates collects every leaf entry p below page with
// dist(p, q) <= p.KnnDistance. dq is the distance between q and the routing
// object of the node on page, NaN for the root.
func (t *Tree) rknnCandidates(page pagefile.PageID, q model.ID, dq float64, out *[]model.Neighbor) error {
	node, err := t.store.read(page)
	if err != nil {
		return err
	}
	for i := range node.Entries {
		e := &node.Entries[i]
		if prunedByParent(node.Leaf, dq, e, e.KnnDistance) {
			continue
		}
		d := t.oracle.Distance(e.RoutingID, q)
		if node.Leaf {
			if d <= e.KnnDistance {
				*out = append(*out, model.Neighbor{ID: e.RoutingID, Distance: d})
			}
			continue
		}
		if minDist := math.Max(d-e.CoveringRadius, 0); minDist <= e.KnnDistance {
			if err := t.rknnCandidates(e.Child, q, d, out); err != nil {
				return err
			}
		}
	}
	return nil
}
