package mtree

import (
	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

// Node is the decoded content of one page.
type Node struct {
	ID      pagefile.PageID
	Leaf    bool
	Entries []Entry
}

// KnnDistance returns the maximum kNN distance of the entries.
func (n *Node) KnnDistance() float64 {
	knn := distance.Null
	for i := range n.Entries {
		if d := n.Entries[i].KnnDistance; d > knn {
			knn = d
		}
	}
	return knn
}

// CoveringRadius returns the radius around the node's routing object that
// covers every object below the node. It is only meaningful for non-root
// nodes, whose entries carry parent distances.
func (n *Node) CoveringRadius() float64 {
	r := distance.Null
	for i := range n.Entries {
		e := &n.Entries[i]
		d := e.ParentDistance
		if !n.Leaf {
			d += e.CoveringRadius
		}
		if d > r {
			r = d
		}
	}
	return r
}

// adjustEntry makes e describe n with the given routing object.
// It reports whether any field of e changed.
func (n *Node) adjustEntry(e *Entry, routing model.ID, parentDistance float64) bool {
	before := *e
	e.Kind = KindDirectory
	e.RoutingID = routing
	e.ParentDistance = parentDistance
	e.Child = n.ID
	e.CoveringRadius = n.CoveringRadius()
	e.KnnDistance = n.KnnDistance()
	return !before.Equal(*e)
}
