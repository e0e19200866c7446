package mtree

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/internal/queue"
	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

// InconsistencyKind classifies an Inconsistency.
type InconsistencyKind string

const (
	KindKnnAggregate   InconsistencyKind = "knn_aggregate"   // directory bound != max of the child node
	KindRootKnn        InconsistencyKind = "root_knn"        // root entry bound != max of the root node
	KindCoveringRadius InconsistencyKind = "covering_radius" // radius does not cover the child node
	KindParentDistance InconsistencyKind = "parent_distance" // stored parent distance is wrong
	KindOverflow       InconsistencyKind = "overflow"        // node holds capacity entries or more
	KindLeafBound      InconsistencyKind = "leaf_bound"      // leaf bound is invalid, or loose while not pending
	KindPending        InconsistencyKind = "pending"         // undefined bound missing from the pending set
)

// Inconsistency is one violated tree invariant.
type Inconsistency struct {
	Kind     InconsistencyKind
	Page     pagefile.PageID
	ID       model.ID
	Stored   float64
	Expected float64
}

func (i Inconsistency) String() string {
	return fmt.Sprintf("%s: page %d, object %d: stored %g, expected %g", i.Kind, i.Page, i.ID, i.Stored, i.Expected)
}

// Validate checks every structural invariant and compares every leaf bound
// with the true kNN distance of its object.
func (t *Tree) Validate(ctx context.Context) ([]Inconsistency, error) {
	var out []Inconsistency
	if err := t.checkNode(rootPage, step{page: rootPage, index: -1}, &out); err != nil {
		return nil, err
	}
	if err := t.checkLeafBounds(ctx, rootPage, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkStructure runs the structural part of Validate. Read errors are
// reported as a single inconsistency-free failure in the log.
func (t *Tree) checkStructure() []Inconsistency {
	var out []Inconsistency
	if err := t.checkNode(rootPage, step{page: rootPage, index: -1}, &out); err != nil {
		t.logger.Error("integrity check failed", "error", err)
	}
	return out
}

func (t *Tree) logInconsistencies(ctx context.Context, list []Inconsistency) {
	for _, inc := range list {
		t.logger.WarnContext(ctx, "tree inconsistency",
			"kind", string(inc.Kind),
			"page", inc.Page,
			"id", inc.ID,
			"stored", inc.Stored,
			"expected", inc.Expected)
	}
}

func (t *Tree) checkNode(page pagefile.PageID, at step, out *[]Inconsistency) error {
	node, err := t.store.read(page)
	if err != nil {
		return err
	}

	if c := t.caps.of(node); len(node.Entries) >= c {
		*out = append(*out, Inconsistency{Kind: KindOverflow, Page: page, Stored: float64(len(node.Entries)), Expected: float64(c - 1)})
	}
	if page == rootPage && !sameFloat(t.rootKnn, node.KnnDistance()) {
		*out = append(*out, Inconsistency{Kind: KindRootKnn, Page: page, Stored: t.rootKnn, Expected: node.KnnDistance()})
	}

	for i := range node.Entries {
		e := &node.Entries[i]

		want := t.parentDistance(at, e.RoutingID)
		if !closeTo(e.ParentDistance, want) {
			*out = append(*out, Inconsistency{Kind: KindParentDistance, Page: page, ID: e.RoutingID, Stored: e.ParentDistance, Expected: want})
		}

		if node.Leaf {
			if distance.IsUndefined(e.KnnDistance) && !t.pending.Contains(uint32(e.RoutingID)) {
				*out = append(*out, Inconsistency{Kind: KindPending, Page: page, ID: e.RoutingID, Stored: e.KnnDistance, Expected: e.KnnDistance})
			}
			continue
		}

		child, err := t.store.read(e.Child)
		if err != nil {
			return err
		}
		if knn := child.KnnDistance(); !sameFloat(e.KnnDistance, knn) {
			*out = append(*out, Inconsistency{Kind: KindKnnAggregate, Page: page, ID: e.RoutingID, Stored: e.KnnDistance, Expected: knn})
		}
		if r := child.CoveringRadius(); e.CoveringRadius < r && !closeTo(e.CoveringRadius, r) {
			*out = append(*out, Inconsistency{Kind: KindCoveringRadius, Page: page, ID: e.RoutingID, Stored: e.CoveringRadius, Expected: r})
		}

		if err := t.checkNode(e.Child, step{page: e.Child, index: i, routing: e.RoutingID, routed: true}, out); err != nil {
			return err
		}
	}
	return nil
}

// checkLeafBounds compares every leaf bound with the exact kNN distance. A
// bound below the exact value is invalid; a bound above it is only reported
// when the object is not pending.
func (t *Tree) checkLeafBounds(ctx context.Context, page pagefile.PageID, out *[]Inconsistency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node, err := t.store.read(page)
	if err != nil {
		return err
	}
	for i := range node.Entries {
		e := node.Entries[i]
		if !node.Leaf {
			if err := t.checkLeafBounds(ctx, e.Child, out); err != nil {
				return err
			}
			continue
		}

		knns := queue.NewKNNHeap(t.kMax)
		if err := t.knnSearch(e.RoutingID, knns, true); err != nil {
			return err
		}
		exact := knns.KDistance()

		invalid := e.KnnDistance < exact && !closeTo(e.KnnDistance, exact)
		loose := !closeTo(e.KnnDistance, exact) && !t.pending.Contains(uint32(e.RoutingID))
		if invalid || loose {
			*out = append(*out, Inconsistency{Kind: KindLeafBound, Page: page, ID: e.RoutingID, Stored: e.KnnDistance, Expected: exact})
		}
	}
	return nil
}

func closeTo(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return sameFloat(a, b)
	}
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
