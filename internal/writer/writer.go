// Package writer implements the per-granule store writer of spec.md §4.E:
// copying one input dataset's group hierarchy, variables, and attributes
// into a shared output store, placing aggregated-axis variables into the
// correct output slice. Grounded on the read-side traversal/attribute
// copying of the retrieved TuSKan-go-zarr teacher's zarr.Dataset, adapted
// here into a writer driven by internal/store instead of gomlx tensors.
package writer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/harmony-services/netcdf-to-zarr/internal/aggregate"
	"github.com/harmony-services/netcdf-to-zarr/internal/chunkplan"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
	"github.com/harmony-services/netcdf-to-zarr/internal/store"
	"go.uber.org/zap"
)

// ChunkShapeCache remembers the chunk shape the first granule to touch a
// variable path established, the "per-variable chunk-shape map precomputed
// from the first granule" of spec.md §4.E. Safe for concurrent use by
// every worker goroutine.
type ChunkShapeCache struct {
	mu    sync.Mutex
	byPath map[string][]int
}

func NewChunkShapeCache() *ChunkShapeCache {
	return &ChunkShapeCache{byPath: map[string][]int{}}
}

// GetOrCompute returns the cached chunk shape for path, computing and
// storing it via compute on first use. Only the first caller's computation
// is kept — later callers for the same path get that one back, matching
// "the first granule to touch a variable wins the chunk shape" (array.go's
// CreateOrGetArray doc, which this cache exists to keep consistent with).
func (c *ChunkShapeCache) GetOrCompute(path string, compute func() ([]int, error)) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if shape, ok := c.byPath[path]; ok {
		return shape, nil
	}
	shape, err := compute()
	if err != nil {
		return nil, err
	}
	c.byPath[path] = shape
	return shape, nil
}

// Writer copies one granule at a time into a shared Store, per spec.md
// §4.E. A single Writer is safe to share across worker goroutines: all
// state that must be consistent across granules (chunk shapes) lives in
// the caller-supplied ChunkShapeCache, and all store mutations go through
// Store's own locking.
type Writer struct {
	Store  *store.Store
	Logger *zap.Logger

	// ChunkBudget supplies the CompressionRatio/TargetBytes a caller wants
	// the chunkplan.Plan fallback (for variables with no native on-disk
	// chunking) to target; its Shape/DType fields are ignored and
	// recomputed per variable. The zero value uses chunkplan's defaults.
	ChunkBudget chunkplan.Spec
}

func (w *Writer) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

// WriteGranule opens the dataset at path and copies it into the shared
// store, per spec.md §4.E. aggregated is nil when the conversion has a
// single input (no aggregation pass ran, spec.md §4.C step 2); in that
// case every variable is written at its own native shape and no slice
// placement is needed. aggregatedPaths marks every dimension and bounds
// path written once up front by the caller before workers start (spec.md
// §5's "no worker races on them"), so WriteGranule must never overwrite
// them with a granule's own copy.
func (w *Writer) WriteGranule(ctx context.Context, path string, aggregated *aggregate.Result, aggregatedPaths map[string]bool, chunkShapes *ChunkShapeCache) error {
	ds, err := netcdf.Open(path)
	if err != nil {
		return fmt.Errorf("writer: open %s: %w", path, err)
	}
	defer ds.Close()

	return w.WriteDataset(ctx, ds, path, aggregated, aggregatedPaths, chunkShapes)
}

// WriteDataset runs the same traversal WriteGranule does against an
// already-open Dataset, the seam WriteGranule delegates to once it has
// opened the on-disk granule at path. label is used only for logging; it
// need not be a real path (tests build ds with netcdf.NewFixtureDataset).
func (w *Writer) WriteDataset(ctx context.Context, ds *netcdf.Dataset, label string, aggregated *aggregate.Result, aggregatedPaths map[string]bool, chunkShapes *ChunkShapeCache) error {
	w.logger().Info("writing granule", zap.String("path", label))

	var writeErr error
	ds.Walk(func(g *netcdf.Group) {
		if writeErr != nil {
			return
		}
		if err := ctx.Err(); err != nil {
			writeErr = err
			return
		}
		if err := w.writeGroup(ctx, ds, g, aggregated, aggregatedPaths, chunkShapes); err != nil {
			writeErr = err
		}
	})
	if writeErr != nil {
		return fmt.Errorf("writer: %s: %w", label, writeErr)
	}
	return nil
}

// writeGroup implements spec.md §4.E step 3: ensure the Zarr group exists,
// copy its attributes (existing-wins, handled by Store.WriteAttrs), then
// copy every variable it directly owns.
func (w *Writer) writeGroup(ctx context.Context, ds *netcdf.Dataset, g *netcdf.Group, aggregated *aggregate.Result, aggregatedPaths map[string]bool, chunkShapes *ChunkShapeCache) error {
	if err := w.Store.EnsureGroup(ctx, g.Path); err != nil {
		return fmt.Errorf("group %s: %w", g.Path, err)
	}
	if err := w.Store.WriteAttrs(ctx, g.Path, g.Attributes, nil); err != nil {
		return fmt.Errorf("group %s: attrs: %w", g.Path, err)
	}

	names := make([]string, 0, len(g.Variables))
	for name := range g.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := g.Variables[name]
		if err := w.writeVariable(ctx, ds, v, aggregated, aggregatedPaths, chunkShapes); err != nil {
			return fmt.Errorf("variable %s: %w", v.Path, err)
		}
	}
	return nil
}
