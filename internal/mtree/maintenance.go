package mtree

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/internal/queue"
	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

// preInsert computes the kNN distance of the new entry q and refines the
// bound of every existing entry that has q among its k_max nearest
// neighbors. q is not yet part of the tree.
func (t *Tree) preInsert(ctx context.Context, q *Entry) error {
	knnsQ := queue.NewKNNHeap(t.kMax)
	return t.preInsertAt(ctx, q, rootPage, &t.rootKnn, knnsQ)
}

// preInsertAt handles the subtree on page, whose kNN distance is stored in
// bound. knnsQ collects the neighbors of q across the whole descent.
func (t *Tree) preInsertAt(ctx context.Context, q *Entry, page pagefile.PageID, bound *float64, knnsQ *queue.KNNHeap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node, err := t.store.read(page)
	if err != nil {
		return err
	}

	changed := false
	if node.Leaf {
		for i := range node.Entries {
			p := &node.Entries[i]
			d := t.oracle.Distance(p.RoutingID, q.RoutingID)

			if knnsQ.Add(p.RoutingID, d) && knnsQ.Full() {
				q.KnnDistance = knnsQ.KDistance()
			}

			if d <= p.KnnDistance {
				refined, err := t.refineBound(p.RoutingID, q.RoutingID, d)
				if err != nil {
					return err
				}
				if !sameFloat(refined, p.KnnDistance) {
					t.logger.Debug("knn distance refined", "id", p.RoutingID, "from", p.KnnDistance, "to", refined, "by", q.RoutingID)
					p.KnnDistance = refined
					changed = true
				}
				t.markBound(p.RoutingID, p.KnnDistance)
			}
		}
	} else {
		for _, c := range t.sortedEntries(node, []model.ID{q.RoutingID}) {
			e := &node.Entries[c.index]
			if c.minDist < e.KnnDistance || c.minDist < knnsQ.KDistance() {
				before := e.KnnDistance
				if err := t.preInsertAt(ctx, q, e.Child, &e.KnnDistance, knnsQ); err != nil {
					return err
				}
				changed = changed || !sameFloat(before, e.KnnDistance)
			}
		}
	}

	if changed {
		if err := t.store.write(node); err != nil {
			return err
		}
	}
	*bound = node.KnnDistance()
	return nil
}

// refineBound returns the kNN distance of p in the tree extended by q, which
// lies at distance d from p. The result is undefined (+Inf) when fewer than
// k_max other objects exist.
func (t *Tree) refineBound(p, q model.ID, d float64) (float64, error) {
	knnsP := queue.NewKNNHeap(t.kMax)
	knnsP.Add(q, d)
	if err := t.knnSearch(p, knnsP, true); err != nil {
		return 0, err
	}
	return knnsP.KDistance(), nil
}

// markBound keeps the pending set in sync with a freshly computed bound.
func (t *Tree) markBound(id model.ID, knn float64) {
	if distance.IsUndefined(knn) {
		t.pending.Add(uint32(id))
	} else {
		t.pending.Remove(uint32(id))
	}
}

// adjustBounds recomputes the bounds of the subtree on page bottom-up. Leaf
// entries take the k-th distance of their heap; entries without a heap keep
// their bound. The subtree bound is stored in bound.
func (t *Tree) adjustBounds(ctx context.Context, page pagefile.PageID, bound *float64, heaps map[model.ID]*queue.KNNHeap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node, err := t.store.read(page)
	if err != nil {
		return err
	}

	changed := false
	for i := range node.Entries {
		e := &node.Entries[i]
		before := e.KnnDistance
		if node.Leaf {
			h, ok := heaps[e.RoutingID]
			if !ok {
				continue
			}
			e.KnnDistance = h.KDistance()
			t.markBound(e.RoutingID, e.KnnDistance)
		} else if err := t.adjustBounds(ctx, e.Child, &e.KnnDistance, heaps); err != nil {
			return err
		}
		changed = changed || !sameFloat(before, e.KnnDistance)
	}

	if changed {
		if err := t.store.write(node); err != nil {
			return err
		}
	}
	*bound = node.KnnDistance()
	return nil
}

// InsertAll inserts ids and recomputes the affected bounds once. Existing
// objects are affected when a new object falls inside their current kNN
// ball; those and the new objects get one batch kNN query each.
func (t *Tree) InsertAll(ctx context.Context, ids []model.ID) (err error) {
	seen := roaring.New()
	for _, id := range ids {
		if t.Contains(id) || !seen.CheckedAdd(uint32(id)) {
			return fmt.Errorf("%w: %d", ErrDuplicate, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	affected := roaring.New()
	if t.Len() > 0 {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			var cands []model.Neighbor
			if err := t.rknnCandidates(rootPage, id, math.NaN(), &cands); err != nil {
				return err
			}
			for _, c := range cands {
				affected.Add(uint32(c.ID))
			}
		}
	}
	// Until the adjustment below, these bounds are valid but possibly loose.
	t.pending.Or(affected)
	wasLoose := t.loose
	if !affected.IsEmpty() {
		t.loose = true
		if err := t.writeHeader(); err != nil {
			return err
		}
	}

	defer func() {
		// Keep the header in line with the leaves after a partial batch.
		if err != nil {
			err = errors.Join(err, t.writeHeader())
		}
	}()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.insert(ctx, id, false); err != nil {
			return err
		}
	}

	targets := roaring.Or(seen, affected)
	t.loose = wasLoose
	if err := t.refresh(ctx, toIDs(targets)); err != nil {
		t.loose = true
		return err
	}

	t.logger.Debug("batch insert adjusted", "inserted", len(ids), "affected", affected.GetCardinality())

	if t.checks {
		t.logInconsistencies(ctx, t.checkStructure())
	}
	return nil
}

// Adjust repairs every pending bound.
func (t *Tree) Adjust(ctx context.Context) (int, error) {
	ids := toIDs(t.pending)
	if len(ids) == 0 {
		return 0, nil
	}
	wasLoose := t.loose
	t.loose = false
	if err := t.refresh(ctx, ids); err != nil {
		t.loose = wasLoose
		return 0, err
	}
	return len(ids), nil
}

// refresh recomputes the bounds of ids with a batch kNN query followed by a
// bulk adjustment of the whole tree.
func (t *Tree) refresh(ctx context.Context, ids []model.ID) error {
	heaps, err := t.batchKNN(ctx, ids, t.kMax)
	if err != nil {
		return err
	}
	if err := t.adjustBounds(ctx, rootPage, &t.rootKnn, heaps); err != nil {
		return err
	}
	return t.writeHeader()
}

func toIDs(b *roaring.Bitmap) []model.ID {
	ids := make([]model.ID, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		ids = append(ids, model.ID(it.Next()))
	}
	return ids
}
