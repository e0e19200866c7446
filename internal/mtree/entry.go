package mtree

import (
	"fmt"
	"math"

	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

// Kind tags an Entry as leaf or directory entry.
type Kind uint8

const (
	KindLeaf Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "leaf"
}

// Entry is a leaf or directory entry of a node.
//
// ParentDistance is NaN for entries of the root node. KnnDistance is +Inf
// while the bound is undefined.
type Entry struct {
	Kind           Kind
	RoutingID      model.ID
	ParentDistance float64
	KnnDistance    float64

	// Directory entries only.
	Child          pagefile.PageID
	CoveringRadius float64
}

// NewLeafEntry returns a leaf entry with an undefined kNN distance.
func NewLeafEntry(id model.ID, parentDistance float64) Entry {
	return Entry{
		Kind:           KindLeaf,
		RoutingID:      id,
		ParentDistance: parentDistance,
		KnnDistance:    distance.Infinite,
	}
}

// NewDirectoryEntry returns a directory entry for child.
func NewDirectoryEntry(routing model.ID, child pagefile.PageID, parentDistance, coveringRadius, knn float64) Entry {
	return Entry{
		Kind:           KindDirectory,
		RoutingID:      routing,
		ParentDistance: parentDistance,
		KnnDistance:    knn,
		Child:          child,
		CoveringRadius: coveringRadius,
	}
}

// IsLeaf reports whether e is a leaf entry.
func (e *Entry) IsLeaf() bool { return e.Kind == KindLeaf }

// Equal compares all fields. NaN parent distances are equal to each other.
func (e Entry) Equal(o Entry) bool {
	if e.Kind != o.Kind || e.RoutingID != o.RoutingID {
		return false
	}
	if !sameFloat(e.ParentDistance, o.ParentDistance) || !sameFloat(e.KnnDistance, o.KnnDistance) {
		return false
	}
	if e.Kind == KindDirectory {
		return e.Child == o.Child && sameFloat(e.CoveringRadius, o.CoveringRadius)
	}
	return true
}

func (e Entry) String() string {
	if e.Kind == KindDirectory {
		return fmt.Sprintf("dir(%d -> page %d, pd=%g, r=%g, knn=%g)", e.RoutingID, e.Child, e.ParentDistance, e.CoveringRadius, e.KnnDistance)
	}
	return fmt.Sprintf("leaf(%d, pd=%g, knn=%g)", e.RoutingID, e.ParentDistance, e.KnnDistance)
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}
