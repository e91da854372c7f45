// Package aggregate implements the dimension aggregator, spec.md §4.C:
// scanning every input dataset's dimensions, classifying each distinct
// dimension path as temporal or non-temporal, and — for more than one
// input — reconciling temporal dimensions onto a single regular output
// grid (with bounds) while leaving non-temporal (spatial) dimensions
// untouched by policy (spec.md §9).
package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/harmony-services/netcdf-to-zarr/internal/dimension"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
)

// InputDimensions is the "Input-dimension map" of spec.md §3: dimension
// path -> input file path -> that file's dimension record.
type InputDimensions map[string]map[string]*dimension.Record

// Result carries the "Output-dimension map" and its bounds-path index, both
// only populated when more than one input file was aggregated.
type Result struct {
	Output       map[string]*dimension.Record
	OutputBounds map[string]string // bounds path -> governing dimension path
}

// Input pairs an already-opened dataset with the file path it was read
// from, the key InputDimensions indexes by.
type Input struct {
	Path    string
	Dataset *netcdf.Dataset
}

// Aggregate builds the input-dimension map for every input, and — when more
// than one input is supplied — the aggregated output-dimension map and its
// bounds index, per spec.md §4.C.
func Aggregate(ctx context.Context, inputs []Input) (InputDimensions, *Result, error) {
	inputDims := InputDimensions{}

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		in.Dataset.Walk(func(g *netcdf.Group) {
			for _, v := range g.Variables {
				for _, dimName := range v.Dimensions {
					path := resolveDimPath(g.Path, dimName, in.Dataset)
					dv, ok := in.Dataset.Variable(path)
					if !ok {
						continue
					}
					rec, err := dimension.FromVariable(in.Dataset, dv)
					if err != nil {
						continue
					}
					if inputDims[path] == nil {
						inputDims[path] = map[string]*dimension.Record{}
					}
					inputDims[path][in.Path] = rec
				}
			}
		})
	}

	if len(inputs) <= 1 {
		return inputDims, nil, nil
	}

	result := &Result{Output: map[string]*dimension.Record{}, OutputBounds: map[string]string{}}
	for path, byFile := range inputDims {
		records := make([]*dimension.Record, 0, len(byFile))
		for _, r := range byFile {
			records = append(records, r)
		}

		numTemporal := 0
		for _, r := range records {
			if r.IsTemporal() {
				numTemporal++
			}
		}
		switch {
		case numTemporal == len(records):
			agg, err := aggregateTemporal(records)
			if err != nil {
				return nil, nil, err
			}
			result.Output[path] = agg
			if agg.BoundsPath != nil {
				result.OutputBounds[*agg.BoundsPath] = path
			}
		case numTemporal == 0:
			// Non-temporal (spatial) aggregation is intentionally disabled —
			// spec.md §9's design note: inputs are assumed to share their
			// spatial grid, and reconstructing a regular grid here risks
			// spurious results for upstream-reprojected data with jitter.
			// Each granule instead writes its own spatial axis length
			// unaggregated (spec.md §4.E.1).
		default:
			return nil, nil, &MixedDimensionTypeError{Path: path}
		}
	}

	return inputDims, result, nil
}

// resolveDimPath resolves a variable's dimension name to a fully qualified
// path: a leading slash is absolute; otherwise a same-group variable of
// that name is preferred, falling back to the dataset root — spec.md §4.C
// step 1.
func resolveDimPath(groupPath, name string, ds *netcdf.Dataset) string {
	if len(name) > 0 && name[0] == '/' {
		return name
	}
	candidate := groupPath
	if candidate == "/" {
		candidate = "/" + name
	} else {
		candidate = candidate + "/" + name
	}
	if _, ok := ds.Variable(candidate); ok {
		return candidate
	}
	return "/" + name
}

// aggregateTemporal implements spec.md §4.C.1: pick the earliest epoch as
// the output epoch, convert every contributing record's values onto it,
// take the sorted union, and reconstruct the regular output grid from the
// union's resolution.
func aggregateTemporal(records []*dimension.Record) (*dimension.Record, error) {
	earliest := records[0]
	for _, r := range records[1:] {
		if r.Epoch.Before(*earliest.Epoch) {
			earliest = r
		}
	}
	outEpoch, outUnit, outUnits := *earliest.Epoch, earliest.TimeUnit, earliest.Units

	var union []float64
	for _, r := range records {
		union = append(union, r.ValuesIn(outEpoch, outUnit)...)
	}
	sort.Float64s(union)
	union = dedupe(union)

	res, scale := resolution(union)
	minV, maxV := union[0], union[len(union)-1]
	decimals := decimalsForScale(scale)

	var values []float64
	if len(union) == 1 || res == 0 {
		values = []float64{union[0]}
	} else {
		n := int(roundTo((maxV-minV)/res, 0)) + 1
		values = make([]float64, n)
		for i := 0; i < n; i++ {
			values[i] = roundTo(minV+float64(i)*res, decimals)
		}
	}

	out := &dimension.Record{
		Path:     earliest.Path,
		Values:   values,
		Units:    outUnits,
		Epoch:    &outEpoch,
		TimeUnit: outUnit,
	}

	if err := deriveBounds(out, records, outEpoch, outUnit, decimals); err != nil {
		return nil, err
	}
	return out, nil
}

func dedupe(sorted []float64) []float64 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v-out[len(out)-1] > floatTolerance {
			out = append(out, v)
		}
	}
	return out
}

// deriveBounds implements spec.md §4.C.3: copy each input's bounds rows
// into the output indices its (converted) values land on, then fill any
// coverage gap using the median lower/upper offset observed among the
// filled rows.
func deriveBounds(out *dimension.Record, records []*dimension.Record, outEpoch time.Time, outUnit dimension.TimeUnit, decimals int) error {
	var boundsPath *string
	for _, r := range records {
		if r.BoundsPath != nil {
			boundsPath = r.BoundsPath
			break
		}
	}
	if boundsPath == nil {
		return nil
	}

	n := len(out.Values)
	bounds := make([][2]float64, n)
	filled := make([]bool, n)

	for _, r := range records {
		if len(r.BoundsValues) == 0 {
			continue
		}
		converted := r.ValuesIn(outEpoch, outUnit)
		for i, v := range converted {
			idx := findIndex(out.Values, v)
			if idx < 0 {
				continue
			}
			lo := dimension.ConvertTemporal(r.BoundsValues[i][0], *r.Epoch, r.TimeUnit, outEpoch, outUnit)
			hi := dimension.ConvertTemporal(r.BoundsValues[i][1], *r.Epoch, r.TimeUnit, outEpoch, outUnit)
			bounds[idx] = [2]float64{lo, hi}
			filled[idx] = true
		}
	}

	fillGaps(out.Values, bounds, filled)

	for i := range bounds {
		bounds[i][0] = roundTo(bounds[i][0], decimals)
		bounds[i][1] = roundTo(bounds[i][1], decimals)
	}

	out.BoundsPath = boundsPath
	out.BoundsValues = bounds
	return nil
}

func findIndex(values []float64, v float64) int {
	for i, c := range values {
		if abs(c-v) <= floatTolerance {
			return i
		}
	}
	return -1
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// fillGaps fills any unfilled bounds row using the median lower/upper
// offset computed from the filled rows, per spec.md §4.C.3's coverage-gap
// rule.
func fillGaps(values []float64, bounds [][2]float64, filled []bool) {
	var lowerOffsets, upperOffsets []float64
	for i, ok := range filled {
		if !ok {
			continue
		}
		lowerOffsets = append(lowerOffsets, values[i]-bounds[i][0])
		upperOffsets = append(upperOffsets, bounds[i][1]-values[i])
	}
	if len(lowerOffsets) == 0 {
		return
	}
	lowerOffset := median(lowerOffsets)
	upperOffset := median(upperOffsets)
	for i, ok := range filled {
		if ok {
			continue
		}
		bounds[i] = [2]float64{values[i] - lowerOffset, values[i] + upperOffset}
	}
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
