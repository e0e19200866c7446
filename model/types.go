package model

import (
	"fmt"
	"math"
)

// ID identifies an object of a Relation.
// IDs are stored in tree pages as 4 bytes.
type ID uint32

// IDSize is the serialized size of an ID in bytes.
const IDSize = 4

// Neighbor is a single query result.
type Neighbor struct {
	ID       ID
	Distance float64
}

// String returns a string representation of the Neighbor.
func (n Neighbor) String() string {
	return fmt.Sprintf("Neighbor(%d:%g)", n.ID, n.Distance)
}

// Less orders neighbors by distance, then by id.
func (n Neighbor) Less(o Neighbor) bool {
	if n.Distance != o.Distance {
		return n.Distance < o.Distance
	}
	return n.ID < o.ID
}

// CompareNeighbors is a comparison function for slices.SortFunc.
func CompareNeighbors(a, b Neighbor) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// Relation is the object store the index reads from.
// Implementations must be safe for concurrent reads.
type Relation[O any] interface {
	// Get returns the object stored under id.
	Get(id ID) (O, bool)
	// Size returns the number of objects in the relation.
	Size() int
}

// SliceRelation is a Relation over a dense slice; object i has ID i.
type SliceRelation[O any] struct {
	objects []O
}

// NewSliceRelation wraps objects as a Relation.
func NewSliceRelation[O any](objects []O) *SliceRelation[O] {
	return &SliceRelation[O]{objects: objects}
}

// Get returns the object with the given id.
func (r *SliceRelation[O]) Get(id ID) (O, bool) {
	if int64(id) >= int64(len(r.objects)) {
		var zero O
		return zero, false
	}
	return r.objects[id], true
}

// Size returns the number of objects.
func (r *SliceRelation[O]) Size() int {
	return len(r.objects)
}

// Append adds an object and returns its id.
// Append is not safe for concurrent use with Get.
func (r *SliceRelation[O]) Append(obj O) (ID, error) {
	if len(r.objects) >= math.MaxUint32 {
		return 0, fmt.Errorf("model: relation full")
	}
	r.objects = append(r.objects, obj)
	return ID(len(r.objects) - 1), nil
}

// IDs returns all ids of the relation in ascending order.
func (r *SliceRelation[O]) IDs() []ID {
	ids := make([]ID, len(r.objects))
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}
