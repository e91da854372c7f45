// Package chunkplan computes a chunk shape for an array given its shape,
// element type, and a target compressed chunk size — spec.md §4.A. It is
// the single seam internal/writer (first-granule sizing) and
// internal/rechunk (destination sizing) call through.
package chunkplan

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
)

// DefaultCompressionRatio is the assumed ratio of uncompressed to compressed
// bytes when none is supplied, matching spec.md §4.A's "default ≈ 1.5".
const DefaultCompressionRatio = 1.5

// DefaultTargetBytes is the default compressed-chunk byte budget, matching
// the Zarr ecosystem's megabyte-scale chunk convention.
const DefaultTargetBytes ByteSize = 4 * 1024 * 1024

// ByteSize is a byte count, nameable either as a plain integer or as a
// binary-prefixed string ("4Mi", "512 Ki", "1Gi").
type ByteSize int64

var byteSizeRE = regexp.MustCompile(`^\s*([\d.]+)\s*(Ki|Mi|Gi)\s*$`)

var prefixMultiplier = map[string]float64{
	"Ki": 1024,
	"Mi": 1024 * 1024,
	"Gi": 1024 * 1024 * 1024,
}

// ParseByteSize parses a binary-prefix size string of the form
// "<number> Ki|Mi|Gi", per spec.md §4.A. A string that doesn't match this
// pattern is an *InvalidChunkSpecError.
func ParseByteSize(s string) (ByteSize, error) {
	m := byteSizeRE.FindStringSubmatch(s)
	if m == nil {
		return 0, &InvalidChunkSpecError{Reason: fmt.Sprintf("target_bytes %q does not match <number> Ki|Mi|Gi", s)}
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, &InvalidChunkSpecError{Reason: fmt.Sprintf("target_bytes %q has an invalid number: %v", s, err)}
	}
	return ByteSize(n * prefixMultiplier[m[2]]), nil
}

// InvalidChunkSpecError reports a malformed planner input — the
// InvalidChunkSpec kind of spec.md §7.
type InvalidChunkSpecError struct {
	Reason string
}

func (e *InvalidChunkSpecError) Error() string {
	return "chunkplan: invalid chunk spec: " + e.Reason
}

// Spec is the planner's input: an array's shape and element type, plus the
// compressed-byte budget and assumed compression ratio.
type Spec struct {
	Shape            []int
	DType            netcdf.DType
	CompressionRatio float64 // 0 means DefaultCompressionRatio
	TargetBytes      ByteSize
}

// Plan computes a chunk shape of the same rank as spec.Shape, each
// component clamped to the corresponding shape component, targeting a
// compressed size near spec.TargetBytes. Pure and allocation-light: safe to
// call per-variable from both internal/writer and internal/rechunk.
func Plan(spec Spec) ([]int, error) {
	ratio := spec.CompressionRatio
	if ratio == 0 {
		ratio = DefaultCompressionRatio
	}
	if ratio < 1 {
		return nil, &InvalidChunkSpecError{Reason: fmt.Sprintf("compression_ratio %v must be >= 1", ratio)}
	}
	target := spec.TargetBytes
	if target == 0 {
		target = DefaultTargetBytes
	}
	elemSize := spec.DType.Size()
	if elemSize == 0 {
		return nil, &InvalidChunkSpecError{Reason: fmt.Sprintf("dtype %v has unknown element size", spec.DType)}
	}

	rank := len(spec.Shape)
	if rank == 0 {
		return []int{}, nil
	}

	u := math.Floor(float64(target) * ratio / float64(elemSize))

	fixed := make([]int, rank)
	isFixed := make([]bool, rank)
	numFixed := 0

	for numFixed < rank {
		fixedProduct := 1.0
		for i, f := range isFixed {
			if f {
				fixedProduct *= float64(fixed[i])
			}
		}
		if fixedProduct == 0 {
			fixedProduct = 1
		}
		remaining := u / fixedProduct
		k := rank - numFixed
		c := math.Floor(math.Pow(math.Max(remaining, 0), 1.0/float64(k)))
		if c < 1 {
			c = 1
		}

		clampedThisPass := false
		for i := 0; i < rank; i++ {
			if isFixed[i] {
				continue
			}
			if float64(spec.Shape[i]) < c {
				fixed[i] = spec.Shape[i]
				isFixed[i] = true
				numFixed++
				clampedThisPass = true
			}
		}
		if !clampedThisPass {
			for i := 0; i < rank; i++ {
				if !isFixed[i] {
					fixed[i] = int(c)
					isFixed[i] = true
					numFixed++
				}
			}
		}
	}

	for i := range fixed {
		if fixed[i] > spec.Shape[i] {
			fixed[i] = spec.Shape[i]
		}
		if fixed[i] < 1 {
			fixed[i] = 1
		}
	}

	return fixed, nil
}
