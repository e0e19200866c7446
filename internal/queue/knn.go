package queue

import (
	"math"
	"slices"

	"github.com/hupe1980/mkmax/model"
)

// KNNHeap collects the k nearest candidates seen so far.
//
// Candidates tied with the current k-th distance are kept as well, so a
// candidate belongs to the heap iff its distance is <= KDistance().
type KNNHeap struct {
	k    int
	far  heap[model.Neighbor] // farthest on top
	ties []model.Neighbor     // beyond k, all at KDistance
}

// NewKNNHeap returns an empty heap for k neighbors.
func NewKNNHeap(k int) *KNNHeap {
	return &KNNHeap{
		k: k,
		far: heap[model.Neighbor]{
			items: make([]model.Neighbor, 0, k+1),
			less: func(a, b model.Neighbor) bool {
				return model.CompareNeighbors(a, b) > 0
			},
		},
	}
}

// K returns the requested neighbor count.
func (h *KNNHeap) K() int { return h.k }

// Len returns the number of collected candidates, ties included.
func (h *KNNHeap) Len() int { return h.far.len() + len(h.ties) }

// Full reports whether k candidates have been collected.
func (h *KNNHeap) Full() bool { return h.far.len() >= h.k }

// KDistance returns the k-th smallest distance collected so far,
// or +Inf while the heap is not full.
func (h *KNNHeap) KDistance() float64 {
	if !h.Full() {
		return math.Inf(1)
	}
	return h.far.top().Distance
}

// Add offers a candidate. It returns false when the candidate was rejected.
func (h *KNNHeap) Add(id model.ID, d float64) bool {
	n := model.Neighbor{ID: id, Distance: d}
	if !h.Full() {
		h.far.push(n)
		return true
	}
	switch kd := h.far.top().Distance; {
	case d > kd:
		return false
	case d == kd:
		h.ties = append(h.ties, n)
		return true
	}

	h.far.push(n)
	evicted := h.far.pop()
	if h.far.top().Distance == evicted.Distance {
		h.ties = append(h.ties, evicted)
	} else {
		h.ties = h.ties[:0]
	}
	return true
}

// Contains reports whether id is among the collected candidates.
func (h *KNNHeap) Contains(id model.ID) bool {
	has := func(n model.Neighbor) bool { return n.ID == id }
	return slices.ContainsFunc(h.far.items, has) || slices.ContainsFunc(h.ties, has)
}

// Neighbors returns the collected candidates ordered by distance, then id.
func (h *KNNHeap) Neighbors() []model.Neighbor {
	out := make([]model.Neighbor, 0, h.Len())
	out = append(out, h.far.items...)
	out = append(out, h.ties...)
	slices.SortFunc(out, model.CompareNeighbors)
	return out
}
