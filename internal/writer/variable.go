package writer

import (
	"context"
	"fmt"

	"github.com/harmony-services/netcdf-to-zarr/internal/aggregate"
	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
	"github.com/harmony-services/netcdf-to-zarr/internal/chunkplan"
	"github.com/harmony-services/netcdf-to-zarr/internal/dimension"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
)

// writeVariable implements spec.md §4.E step 4: resolve the aggregated
// shape and chunk shape, fetch or create the Zarr array, place this
// granule's slice (unless the path is an aggregated dimension/bounds path,
// written once up front by the caller), and write its attributes.
func (w *Writer) writeVariable(ctx context.Context, ds *netcdf.Dataset, v *netcdf.Variable, aggregated *aggregate.Result, aggregatedPaths map[string]bool, chunkShapes *ChunkShapeCache) error {
	if len(v.Shape) == 0 && v.Chunks == nil {
		// A rank-0 NetCDF variable has no Zarr array equivalent; represent
		// it as an empty group carrying only its attributes.
		if err := w.Store.EnsureGroup(ctx, v.Path); err != nil {
			return err
		}
		return w.Store.WriteAttrs(ctx, v.Path, v.Attributes, nil)
	}

	shape := aggregatedShape(v, aggregated)

	chunkShape, err := chunkShapeFor(chunkShapes, v, shape, w.ChunkBudget)
	if err != nil {
		return fmt.Errorf("chunk shape: %w", err)
	}

	fillValue := fillValueFor(v)
	meta, _, err := w.Store.CreateOrGetArray(ctx, v.Path, shape, chunkShape, v.DType.ZarrDType(), fillValue)
	if err != nil {
		return fmt.Errorf("create array: %w", err)
	}

	isAggregated := aggregatedPaths[v.Path]
	if !isAggregated {
		start, err := sliceStart(ds, v, aggregated)
		if err != nil {
			return fmt.Errorf("slice placement: %w", err)
		}
		elemSize := v.DType.Size()
		fillBytes := netcdf.EncodeFloat64([]float64{toFloat(fillValue)}, v.DType)
		if err := w.Store.WriteSlice(ctx, v.Path, meta, elemSize, fillBytes, start, v.Shape, v.Data); err != nil {
			return fmt.Errorf("write slice: %w", err)
		}
	}

	overrides := attrval.Map{
		"_ARRAY_DIMENSIONS": attrval.StringArray(append([]string(nil), v.Dimensions...)),
	}
	if isAggregated {
		if rec, ok := aggregated.Output[v.Path]; ok && rec.Units != nil {
			overrides["units"] = attrval.String(*rec.Units)
		} else if governs, ok := aggregated.OutputBounds[v.Path]; ok {
			if rec, ok := aggregated.Output[governs]; ok && rec.Units != nil {
				overrides["units"] = attrval.String(*rec.Units)
			}
		}
	}
	applyScaleCorrection(v, overrides)

	return w.Store.WriteAttrs(ctx, v.Path, v.Attributes, overrides)
}

// chunkShapeFor returns the first-granule-wins chunk shape for v: its
// native on-disk chunking if it declared one, else a planner fallback
// against its aggregated shape (spec.md §4.E step 4).
func chunkShapeFor(cache *ChunkShapeCache, v *netcdf.Variable, shape []int, budget chunkplan.Spec) ([]int, error) {
	return cache.GetOrCompute(v.Path, func() ([]int, error) {
		if v.Chunks != nil {
			chunks := append([]int(nil), v.Chunks...)
			for i := range chunks {
				if chunks[i] > shape[i] {
					chunks[i] = shape[i]
				}
			}
			return chunks, nil
		}
		return chunkplan.Plan(chunkplan.Spec{
			Shape:            shape,
			DType:            v.DType,
			CompressionRatio: budget.CompressionRatio,
			TargetBytes:      budget.TargetBytes,
		})
	})
}

// fillValueFor resolves fill_value = attribute '_FillValue' or 0, per
// spec.md §4.E step 4.
func fillValueFor(v *netcdf.Variable) interface{} {
	if fv, ok := v.Attributes["_FillValue"]; ok {
		if f, ok := fv.AsFloat64(); ok {
			return f
		}
	}
	return 0
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	default:
		return 0
	}
}

// aggregatedShape implements spec.md §4.E.1.
func aggregatedShape(v *netcdf.Variable, aggregated *aggregate.Result) []int {
	if aggregated == nil {
		return append([]int(nil), v.Shape...)
	}
	if rec, ok := aggregated.Output[v.Path]; ok {
		return []int{len(rec.Values)}
	}
	if governs, ok := aggregated.OutputBounds[v.Path]; ok {
		if rec, ok := aggregated.Output[governs]; ok {
			return []int{len(rec.Values), 2}
		}
	}
	shape := make([]int, len(v.Dimensions))
	for i, name := range v.Dimensions {
		dimPath := resolveDimPath(parentPath(v.Path), name, nil)
		if rec, ok := aggregated.Output[dimPath]; ok {
			shape[i] = len(rec.Values)
		} else {
			shape[i] = v.Shape[i]
		}
	}
	return shape
}

// sliceStart implements spec.md §4.E.2: for each axis governed by a
// temporal-aggregated dimension, locate this granule's own values in the
// output grid and use the lowest matching index as the write offset; every
// other axis starts at 0 (the entire axis is written).
func sliceStart(ds *netcdf.Dataset, v *netcdf.Variable, aggregated *aggregate.Result) ([]int, error) {
	start := make([]int, len(v.Dimensions))
	if aggregated == nil {
		return start, nil
	}
	for i, name := range v.Dimensions {
		dimPath := resolveDimPath(parentPath(v.Path), name, ds)
		rec, ok := aggregated.Output[dimPath]
		if !ok || !rec.IsTemporal() {
			continue
		}
		dv, ok := ds.Variable(dimPath)
		if !ok {
			continue
		}
		localRec, err := dimension.FromVariable(ds, dv)
		if err != nil {
			return nil, err
		}
		converted := localRec.ValuesIn(*rec.Epoch, rec.TimeUnit)
		if len(converted) == 0 {
			continue
		}
		idx := closestIndex(rec.Values, converted[0])
		if idx < 0 {
			return nil, fmt.Errorf("dimension %s: granule value %v not found in aggregated grid", dimPath, converted[0])
		}
		start[i] = idx
	}
	return start, nil
}

func closestIndex(values []float64, target float64) int {
	const tol = 1e-6
	for i, v := range values {
		d := v - target
		if d < 0 {
			d = -d
		}
		if d <= tol {
			return i
		}
	}
	return -1
}

// resolveDimPath mirrors aggregate.resolveDimPath: a leading slash is
// absolute, otherwise a same-group variable of that name is preferred,
// falling back to the dataset root.
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
	if ds != nil {
		if _, ok := ds.Variable(candidate); ok {
			return candidate
		}
	}
	return "/" + name
}

func parentPath(path string) string {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
