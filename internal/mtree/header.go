package mtree

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	headerMagic   = "MKMX"
	headerVersion = 1
	headerSize    = 40
)

// header is the content of page 0.
type header struct {
	PageSize int
	Capacity Capacity
	KMax     int
	Size     uint64  // number of indexed objects
	RootKnn  float64 // kNN distance of the root entry
	// Loose marks a file written during an unfinished batch insert, whose
	// finite bounds may be loose.
	Loose bool
}

const headerFlagLoose = 1

func (h *header) encode(buf []byte) []byte {
	le := binary.LittleEndian
	copy(buf[0:4], headerMagic)
	le.PutUint16(buf[4:], headerVersion)
	var flags uint16
	if h.Loose {
		flags |= headerFlagLoose
	}
	le.PutUint16(buf[6:], flags)
	le.PutUint32(buf[8:], uint32(h.PageSize))
	le.PutUint32(buf[12:], uint32(h.Capacity.Directory))
	le.PutUint32(buf[16:], uint32(h.Capacity.Leaf))
	le.PutUint32(buf[20:], uint32(h.KMax))
	le.PutUint64(buf[24:], h.Size)
	le.PutUint64(buf[32:], math.Float64bits(h.RootKnn))
	return buf[:headerSize]
}

func decodeHeader(page []byte) (*header, error) {
	if len(page) < headerSize || string(page[0:4]) != headerMagic {
		return nil, fmt.Errorf("%w: not a tree page file", ErrCorruptPage)
	}
	le := binary.LittleEndian
	if v := le.Uint16(page[4:]); v != headerVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrHeaderMismatch, v)
	}
	return &header{
		PageSize: int(le.Uint32(page[8:])),
		Capacity: Capacity{
			Directory: int(le.Uint32(page[12:])),
			Leaf:      int(le.Uint32(page[16:])),
		},
		KMax:    int(le.Uint32(page[20:])),
		Size:    le.Uint64(page[24:]),
		RootKnn: math.Float64frombits(le.Uint64(page[32:])),
		Loose:   le.Uint16(page[6:])&headerFlagLoose != 0,
	}, nil
}
