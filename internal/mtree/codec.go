package mtree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/mkmax/model"
	"github.com/hupe1980/mkmax/pagefile"
)

// Node page layout, little endian:
//
//	header:    page id u32 | entry count u32 | reserved u32 | leaf u8
//	leaf:      routing id u32 | parent distance f64 | knn distance f64
//	directory: routing id u32 | child u32 | parent distance f64 | covering radius f64 | knn distance f64

func encodedSize(n *Node) int {
	size := dirEntrySize
	if n.Leaf {
		size = leafEntrySize
	}
	return NodeOverhead + len(n.Entries)*size
}

// encodeNode serializes n into buf, which must hold a full page.
func encodeNode(n *Node, buf []byte) ([]byte, error) {
	if need := encodedSize(n); need > len(buf) {
		return nil, fmt.Errorf("mtree: node %d needs %d bytes, page has %d", n.ID, need, len(buf))
	}

	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(n.ID))
	le.PutUint32(buf[4:], uint32(len(n.Entries)))
	le.PutUint32(buf[8:], 0)
	buf[12] = 0
	if n.Leaf {
		buf[12] = 1
	}

	off := NodeOverhead
	for i := range n.Entries {
		e := &n.Entries[i]
		le.PutUint32(buf[off:], uint32(e.RoutingID))
		off += 4
		if n.Leaf {
			le.PutUint64(buf[off:], math.Float64bits(e.ParentDistance))
			le.PutUint64(buf[off+8:], math.Float64bits(e.KnnDistance))
			off += 16
			continue
		}
		le.PutUint32(buf[off:], uint32(e.Child))
		le.PutUint64(buf[off+4:], math.Float64bits(e.ParentDistance))
		le.PutUint64(buf[off+12:], math.Float64bits(e.CoveringRadius))
		le.PutUint64(buf[off+20:], math.Float64bits(e.KnnDistance))
		off += 28
	}
	return buf[:off], nil
}

// decodeNode deserializes the node stored on page id.
func decodeNode(id pagefile.PageID, page []byte) (*Node, error) {
	if len(page) < NodeOverhead {
		return nil, fmt.Errorf("%w: page %d shorter than node header", ErrCorruptPage, id)
	}

	le := binary.LittleEndian
	if stored := pagefile.PageID(le.Uint32(page[0:])); stored != id {
		return nil, fmt.Errorf("%w: page %d holds node %d", ErrCorruptPage, id, stored)
	}
	count := int(le.Uint32(page[4:]))
	n := &Node{ID: id, Leaf: page[12] == 1}

	size := dirEntrySize
	if n.Leaf {
		size = leafEntrySize
	}
	if count > (len(page)-NodeOverhead)/size {
		return nil, fmt.Errorf("%w: page %d claims %d entries", ErrCorruptPage, id, count)
	}

	n.Entries = make([]Entry, count, count+1)
	off := NodeOverhead
	for i := range n.Entries {
		e := &n.Entries[i]
		e.RoutingID = model.ID(le.Uint32(page[off:]))
		off += 4
		if n.Leaf {
			e.Kind = KindLeaf
			e.ParentDistance = math.Float64frombits(le.Uint64(page[off:]))
			e.KnnDistance = math.Float64frombits(le.Uint64(page[off+8:]))
			off += 16
			continue
		}
		e.Kind = KindDirectory
		e.Child = pagefile.PageID(le.Uint32(page[off:]))
		e.ParentDistance = math.Float64frombits(le.Uint64(page[off+4:]))
		e.CoveringRadius = math.Float64frombits(le.Uint64(page[off+12:]))
		e.KnnDistance = math.Float64frombits(le.Uint64(page[off+20:]))
		off += 28
	}
	return n, nil
}
