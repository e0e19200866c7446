// Package queue provides the binary heaps used by tree traversals.
package queue

// heap is a binary heap ordered by less; the least element is on top.
type heap[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (h *heap[T]) len() int { return len(h.items) }

func (h *heap[T]) top() T { return h.items[0] }

func (h *heap[T]) push(x T) {
	h.items = append(h.items, x)
	for i := len(h.items) - 1; i > 0; {
		p := (i - 1) / 2
		if !h.less(h.items[i], h.items[p]) {
			break
		}
		h.items[i], h.items[p] = h.items[p], h.items[i]
		i = p
	}
}

func (h *heap[T]) pop() T {
	var zero T
	top := h.items[0]
	last := len(h.items) - 1
	h.items[0] = h.items[last]
	h.items[last] = zero
	h.items = h.items[:last]

	for i := 0; ; {
		m := i
		for _, c := range [2]int{2*i + 1, 2*i + 2} {
			if c < last && h.less(h.items[c], h.items[m]) {
				m = c
			}
		}
		if m == i {
			break
		}
		h.items[i], h.items[m] = h.items[m], h.items[i]
		i = m
	}
	return top
}

// Subtree is a pending node of a best-first traversal.
type Subtree struct {
	Page uint32

	// MinDist is a lower bound of the query's distance to any object below.
	MinDist float64

	// RoutingDist is the query's distance to the routing object of the
	// entry that pointed to Page, NaN for the root.
	RoutingDist float64
}

// Frontier pops subtrees by ascending MinDist, then page.
type Frontier struct {
	h heap[Subtree]
}

// NewFrontier returns an empty frontier with room for capacity subtrees.
func NewFrontier(capacity int) *Frontier {
	return &Frontier{h: heap[Subtree]{
		items: make([]Subtree, 0, capacity),
		less: func(a, b Subtree) bool {
			if a.MinDist != b.MinDist {
				return a.MinDist < b.MinDist
			}
			return a.Page < b.Page
		},
	}}
}

func (f *Frontier) Len() int { return f.h.len() }

func (f *Frontier) Push(s Subtree) { f.h.push(s) }

// Pop removes the closest subtree. ok is false when the frontier is empty.
func (f *Frontier) Pop() (s Subtree, ok bool) {
	if f.h.len() == 0 {
		return Subtree{}, false
	}
	return f.h.pop(), true
}
