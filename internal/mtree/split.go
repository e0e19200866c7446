package mtree

import (
	"math"

	"github.com/hupe1980/mkmax/model"
)

// adjustTree walks path bottom-up starting with node, the modified node at
// the end of path. Overflowing nodes are split; otherwise the entry pointing
// to the node is refreshed. The walk stops as soon as an entry is unchanged.
func (t *Tree) adjustTree(path []step, node *Node) error {
	for level := len(path) - 1; ; level-- {
		if len(node.Entries) >= t.caps.of(node) {
			sibling, first, second, err := t.split(node)
			if err != nil {
				return err
			}
			if level == 0 {
				return t.growRoot(node, sibling, first, second)
			}

			parent, err := t.store.read(path[level-1].page)
			if err != nil {
				return err
			}
			up := path[level-1]
			node.adjustEntry(&parent.Entries[path[level].index], first, t.parentDistance(up, first))

			var e Entry
			sibling.adjustEntry(&e, second, t.parentDistance(up, second))
			parent.Entries = append(parent.Entries, e)

			node = parent
			continue
		}

		if err := t.store.write(node); err != nil {
			return err
		}
		if level == 0 {
			t.rootKnn = node.KnnDistance()
			return nil
		}

		parent, err := t.store.read(path[level-1].page)
		if err != nil {
			return err
		}
		e := &parent.Entries[path[level].index]
		if !node.adjustEntry(e, e.RoutingID, e.ParentDistance) {
			return nil
		}
		node = parent
	}
}

// split distributes the entries of an overflowing node over node and a new
// sibling (MLB_DIST): the two entries farthest apart are promoted as routing
// objects and every entry goes to the nearer one. Both nodes are written.
func (t *Tree) split(node *Node) (*Node, model.ID, model.ID, error) {
	entries := node.Entries
	n := len(entries)

	dm := make([]float64, n*n)
	a, b := 0, 1
	farthest := -1.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := t.oracle.Distance(entries[i].RoutingID, entries[j].RoutingID)
			dm[i*n+j], dm[j*n+i] = d, d
			if d > farthest {
				farthest, a, b = d, i, j
			}
		}
	}

	first := make([]Entry, 0, n)
	second := make([]Entry, 0, n)
	for i, e := range entries {
		d1, d2 := dm[i*n+a], dm[i*n+b]
		switch {
		case i == a:
			e.ParentDistance = 0
			first = append(first, e)
		case i == b:
			e.ParentDistance = 0
			second = append(second, e)
		case d1 < d2, d1 == d2 && len(first) <= len(second):
			e.ParentDistance = d1
			first = append(first, e)
		default:
			e.ParentDistance = d2
			second = append(second, e)
		}
	}

	sibling, err := t.store.allocate(node.Leaf)
	if err != nil {
		return nil, 0, 0, err
	}
	node.Entries = first
	sibling.Entries = second

	if err := t.store.write(node); err != nil {
		return nil, 0, 0, err
	}
	if err := t.store.write(sibling); err != nil {
		return nil, 0, 0, err
	}

	t.logger.Debug("split node",
		"page", node.ID,
		"sibling", sibling.ID,
		"leaf", node.Leaf,
		"first", entries[a].RoutingID,
		"second", entries[b].RoutingID,
		"first_entries", len(first),
		"second_entries", len(second))

	return sibling, entries[a].RoutingID, entries[b].RoutingID, nil
}

// growRoot moves the split root to a fresh page and writes a new root with
// two entries on the root page.
func (t *Tree) growRoot(oldRoot, sibling *Node, first, second model.ID) error {
	moved, err := t.store.allocate(oldRoot.Leaf)
	if err != nil {
		return err
	}
	moved.Entries = oldRoot.Entries
	if err := t.store.write(moved); err != nil {
		return err
	}

	root := &Node{ID: rootPage, Entries: make([]Entry, 2, t.caps.Directory)}
	moved.adjustEntry(&root.Entries[0], first, math.NaN())
	sibling.adjustEntry(&root.Entries[1], second, math.NaN())
	if err := t.store.write(root); err != nil {
		return err
	}
	t.rootKnn = root.KnnDistance()

	t.logger.Debug("new root", "left", moved.ID, "right", sibling.ID)
	return nil
}
