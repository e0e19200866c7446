package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block codec of a snapshot.
type Compression uint8

const (
	// CompressionNone stores pages as they are.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Block layout: uncompressed size u32 | compressed size u32 | data.
// A compressed size of 0 marks a block stored uncompressed.
const blockHeaderSize = 8

// compressBlock encodes data as one block. Blocks that do not shrink below
// 90% of their size are stored uncompressed.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	switch c {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("snapshot: unknown compression %d", c)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

// decompressBlock decodes the block at the start of data and returns its
// content and the number of bytes consumed.
func decompressBlock(data []byte, c Compression) ([]byte, int, error) {
	if len(data) < blockHeaderSize {
		return nil, 0, io.ErrUnexpectedEOF
	}
	size := int(binary.LittleEndian.Uint32(data[0:]))
	csize := int(binary.LittleEndian.Uint32(data[4:]))

	if csize == 0 {
		if len(data) < blockHeaderSize+size {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return data[blockHeaderSize : blockHeaderSize+size], blockHeaderSize + size, nil
	}

	if len(data) < blockHeaderSize+csize {
		return nil, 0, io.ErrUnexpectedEOF
	}
	src := data[blockHeaderSize : blockHeaderSize+csize]
	out := make([]byte, size)

	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(src, out)
		if err != nil {
			return nil, 0, err
		}
		if n != size {
			return nil, 0, errors.New("snapshot: decompressed size mismatch")
		}
	case CompressionZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, 0, err
		}
		decoded, err := dec.DecodeAll(src, out[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, 0, err
		}
		if len(decoded) != size {
			return nil, 0, errors.New("snapshot: decompressed size mismatch")
		}
		out = decoded
	default:
		return nil, 0, fmt.Errorf("snapshot: compressed block with codec %s", c)
	}
	return out, blockHeaderSize + csize, nil
}

// blockWriter buffers writes into blocks of blockSize bytes and writes each
// block compressed to w.
type blockWriter struct {
	w         io.Writer
	c         Compression
	blockSize int
	buf       []byte
	written   int64
}

func newBlockWriter(w io.Writer, c Compression, blockSize int) *blockWriter {
	return &blockWriter{w: w, c: c, blockSize: blockSize, buf: make([]byte, 0, blockSize)}
}

func (b *blockWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if len(b.buf) == b.blockSize {
			if err := b.Flush(); err != nil {
				return total, err
			}
		}
		n := min(len(p), b.blockSize-len(b.buf))
		b.buf = append(b.buf, p[:n]...)
		total += n
		p = p[n:]
	}
	return total, nil
}

// Flush writes the buffered block, if any.
func (b *blockWriter) Flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	block, err := compressBlock(b.buf, b.c)
	if err != nil {
		return err
	}
	n, err := b.w.Write(block)
	b.written += int64(n)
	if err != nil {
		return err
	}
	b.buf = b.buf[:0]
	return nil
}

// readBlocks decodes consecutive blocks until data is exhausted and returns
// their concatenation.
func readBlocks(data []byte, c Compression) ([]byte, error) {
	var out []byte
	for len(data) > 0 {
		block, n, err := decompressBlock(data, c)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		data = data[n:]
	}
	return out, nil
}
