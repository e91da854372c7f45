package store

import (
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ChunkKey renders a chunk's grid indices as a Zarr v2 chunk key ("i.j.k…"),
// the separator spec.md §3 calls out for <group>/<array>/<chunk> keys. A
// rank-0 array has no indices and uses the fixed key "0".
func ChunkKey(indices []int) string {
	if len(indices) == 0 {
		return "0"
	}
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}

// GridShape returns the number of chunks along each axis: ceil(shape[i] /
// chunks[i]).
func GridShape(shape, chunks []int) []int {
	if len(shape) == 0 {
		return []int{}
	}
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// iterateGrid visits every index tuple in [start, end) (exclusive on each
// axis), in C (row-major) order, stopping at the first error fn returns.
func iterateGrid(start, end []int, fn func(indices []int) error) error {
	if len(start) == 0 {
		return fn(nil)
	}
	indices := append([]int(nil), start...)
	for {
		if err := fn(indices); err != nil {
			return err
		}
		i := len(indices) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < end[i] {
				break
			}
			indices[i] = start[i]
		}
		if i < 0 {
			return nil
		}
	}
}

// zstd encoder/decoder pools: one-shot EncodeAll/DecodeAll calls are the
// teacher's (TuSKan-go-zarr zarr.Dataset.NextBatch) pattern; pooling the
// encoder avoids constructing one per chunk under concurrent writers.
var (
	encoderPool = sync.Pool{New: func() interface{} {
		enc, _ := zstd.NewWriter(nil)
		return enc
	}}
	decoderPool = sync.Pool{New: func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	}}
)

func compress(raw []byte) []byte {
	enc := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(enc)
	return enc.EncodeAll(raw, nil)
}

func decompress(compressed []byte) ([]byte, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	return dec.DecodeAll(compressed, nil)
}
