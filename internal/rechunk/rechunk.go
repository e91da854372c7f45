// Package rechunk implements the rechunker of spec.md §4.G: reading a
// finalized Zarr store and rewriting it into planner-selected chunk shapes
// within a bounded-memory budget, preserving the existing chunking of
// coordinate and bounds variables.
package rechunk

import (
	"context"
	"fmt"
	"os"

	"github.com/harmony-services/netcdf-to-zarr/internal/chunkplan"
	"github.com/harmony-services/netcdf-to-zarr/internal/store"
	"go.uber.org/zap"
)

// Rechunk reads the finalized src store and writes a re-tuned store at
// dstURL, bounding per-step resident memory by memoryBudget. A non-empty
// tmpURL is opened but nothing is staged there (see below). On success,
// dst is finalized with consolidated metadata; src and the scratch space
// are left for the caller to remove (spec.md §4.G step 5 —
// internal/convert performs that deletion once Rechunk returns nil).
func Rechunk(ctx context.Context, src *store.Store, dstURL, tmpURL string, memoryBudget int64, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	dstSyncDir, err := os.MkdirTemp("", "netcdf2zarr-rechunk-dst-sync-*")
	if err != nil {
		return failed(err)
	}
	defer os.RemoveAll(dstSyncDir)

	dst, err := store.Open(ctx, dstURL, dstSyncDir)
	if err != nil {
		return failed(fmt.Errorf("open destination %s: %w", dstURL, err))
	}
	defer dst.Close()

	// tmpURL is reserved for a Planner that needs a staged two-pass shuffle
	// when a single destination chunk's source footprint cannot fit the
	// memory budget; this Planner's one-destination-chunk-at-a-time streaming
	// does not need that staging for the chunk shapes spec.md §4.A produces
	// (each axis clamped to the shape it came from), so tmpURL is only
	// opened (failing if it cannot be) and otherwise left untouched.
	if tmpURL != "" {
		tmpSyncDir, err := os.MkdirTemp("", "netcdf2zarr-rechunk-tmp-sync-*")
		if err != nil {
			return failed(err)
		}
		defer os.RemoveAll(tmpSyncDir)
		tmp, err := store.Open(ctx, tmpURL, tmpSyncDir)
		if err != nil {
			return failed(fmt.Errorf("open scratch %s: %w", tmpURL, err))
		}
		defer tmp.Close()
	}

	groups, err := src.ListGroups(ctx)
	if err != nil {
		return failed(err)
	}
	for _, g := range groups {
		if err := dst.EnsureGroup(ctx, g); err != nil {
			return failed(err)
		}
		attrs, err := src.ReadAttrs(ctx, g)
		if err != nil {
			return failed(err)
		}
		if err := dst.CopyAttrs(ctx, g, attrs); err != nil {
			return failed(err)
		}
	}

	arrays, err := src.ListArrays(ctx)
	if err != nil {
		return failed(err)
	}

	planner := &Planner{Src: src, Dst: dst, MemoryBudget: memoryBudget}

	for _, path := range arrays {
		if err := ctx.Err(); err != nil {
			return failed(err)
		}
		if err := rechunkOne(ctx, planner, path, logger); err != nil {
			return failed(fmt.Errorf("array %s: %w", path, err))
		}
	}

	if err := dst.Finalize(ctx); err != nil {
		return failed(fmt.Errorf("finalize destination: %w", err))
	}
	return nil
}

func rechunkOne(ctx context.Context, planner *Planner, path string, logger *zap.Logger) error {
	meta, err := planner.Src.ReadArrayMeta(ctx, path)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("missing .zarray metadata")
	}

	k, err := classify(ctx, planner.Src, path)
	if err != nil {
		return err
	}

	dstChunks := meta.Chunks
	if k == kindData {
		dtype, err := dtypeFromZarr(meta.DType)
		if err != nil {
			return err
		}
		dstChunks, err = chunkplan.Plan(chunkplan.Spec{Shape: meta.Shape, DType: dtype})
		if err != nil {
			return err
		}
		logger.Info("rechunking data variable", zap.String("path", path), zap.Ints("from", meta.Chunks), zap.Ints("to", dstChunks))
	} else {
		logger.Info("preserving coordinate/bounds chunking", zap.String("path", path), zap.Ints("chunks", dstChunks))
	}

	if err := planner.Copy(ctx, path, meta, dstChunks, meta.FillValue); err != nil {
		return err
	}

	attrs, err := planner.Src.ReadAttrs(ctx, path)
	if err != nil {
		return err
	}
	return planner.Dst.CopyAttrs(ctx, path, attrs)
}
