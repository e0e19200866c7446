package mtree

import (
	"log/slog"

	"github.com/hupe1980/mkmax/distance"
	"github.com/hupe1980/mkmax/model"
)

// NodeOverhead is the size of a node page header:
// page id (4), entry count (4), reserved (4) and leaf flag (1).
const NodeOverhead = 13

const (
	leafEntrySize = model.IDSize + 2*distance.Size
	dirEntrySize  = model.IDSize + model.IDSize + 3*distance.Size

	// Capacities below this still work, but the tree degenerates.
	minEfficientCapacity = 10
)

// Capacity is the maximum fan-out of directory and leaf nodes. A node that
// reaches its capacity is split; at most capacity-1 entries are stored.
type Capacity struct {
	Directory int
	Leaf      int
}

// PlanCapacity derives capacities from the page size.
func PlanCapacity(pageSize int, logger *slog.Logger) (Capacity, error) {
	if pageSize < NodeOverhead {
		return Capacity{}, &PageTooSmallError{PageSize: pageSize}
	}

	c := Capacity{
		Directory: (pageSize-NodeOverhead)/dirEntrySize + 1,
		Leaf:      (pageSize-NodeOverhead)/leafEntrySize + 1,
	}
	if c.Directory <= 1 || c.Leaf <= 1 {
		return Capacity{}, &PageTooSmallError{PageSize: pageSize, Directory: c.Directory, Leaf: c.Leaf}
	}

	if logger != nil {
		if c.Directory < minEfficientCapacity {
			logger.Warn("directory capacity is small", "page_size", pageSize, "capacity", c.Directory)
		}
		if c.Leaf < minEfficientCapacity {
			logger.Warn("leaf capacity is small", "page_size", pageSize, "capacity", c.Leaf)
		}
	}
	return c, nil
}

func (c Capacity) of(n *Node) int {
	if n.Leaf {
		return c.Leaf
	}
	return c.Directory
}
