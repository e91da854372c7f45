// Package convert orchestrates one end-to-end conversion: the control flow
// spec.md §2 describes, wiring the aggregator, worker pool, writer,
// finalizer, and rechunker together over a list of local input files.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/harmony-services/netcdf-to-zarr/internal/aggregate"
	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
	"github.com/harmony-services/netcdf-to-zarr/internal/chunkplan"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
	"github.com/harmony-services/netcdf-to-zarr/internal/rechunk"
	"github.com/harmony-services/netcdf-to-zarr/internal/store"
	"github.com/harmony-services/netcdf-to-zarr/internal/workerpool"
	"github.com/harmony-services/netcdf-to-zarr/internal/writer"
	"go.uber.org/zap"
)

// Config is the Go entry point's constructor argument, per spec.md §6: the
// core takes no process-wide configuration, only what's passed here.
type Config struct {
	InputPaths   []string
	Output       *store.Store
	Logger       *zap.Logger
	WorkerCount  int
	ChunkBudget  chunkplan.Spec
	MemoryBudget int64

	// OpenDataset opens one input by its InputPaths entry, producing the
	// in-memory model the rest of Convert operates on. Defaults to
	// netcdf.Open. Tests substitute it to supply datasets built directly
	// against netcdf.NewFixtureDataset for paths that name no real file, per
	// SPEC_FULL.md's testing section — constructing them in memory rather
	// than round-tripping through real HDF5 files.
	OpenDataset func(path string) (*netcdf.Dataset, error)
}

// Convert runs one conversion: aggregate dimensions across InputPaths,
// write each granule into a fresh intermediate store under worker-pool
// concurrency, finalize it, then rechunk it into cfg.Output — spec.md §2's
// "Control flow of a conversion".
func Convert(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.InputPaths) == 0 {
		return newConvertError(BadInputDataset, ErrBadInputDataset, "no input paths supplied", nil)
	}

	openDataset := cfg.OpenDataset
	if openDataset == nil {
		openDataset = netcdf.Open
	}

	datasets := make([]*netcdf.Dataset, 0, len(cfg.InputPaths))
	datasetsByPath := make(map[string]*netcdf.Dataset, len(cfg.InputPaths))
	inputs := make([]aggregate.Input, 0, len(cfg.InputPaths))
	defer func() {
		for _, ds := range datasets {
			ds.Close()
		}
	}()
	for _, path := range cfg.InputPaths {
		ds, err := openDataset(path)
		if err != nil {
			return newConvertError(BadInputDataset, ErrBadInputDataset, fmt.Sprintf("opening %s", path), err)
		}
		datasets = append(datasets, ds)
		datasetsByPath[path] = ds
		inputs = append(inputs, aggregate.Input{Path: path, Dataset: ds})
	}

	logger.Info("aggregating dimensions", zap.Int("inputs", len(inputs)))
	_, result, err := aggregate.Aggregate(ctx, inputs)
	if err != nil {
		var mixed *aggregate.MixedDimensionTypeError
		if errors.As(err, &mixed) {
			return newConvertError(MixedDimensionType, ErrMixedDimensionType, mixed.Error(), err)
		}
		return newConvertError(BadInputDataset, ErrBadInputDataset, "aggregation failed", err)
	}

	intermediateDir, err := os.MkdirTemp("", "netcdf2zarr-intermediate-*")
	if err != nil {
		return newConvertError(BadInputDataset, ErrBadInputDataset, "creating intermediate scratch directory", err)
	}

	intermediateSyncDir, err := os.MkdirTemp("", "netcdf2zarr-intermediate-sync-*")
	if err != nil {
		return newConvertError(BadInputDataset, ErrBadInputDataset, "creating synchronizer scratch directory", err)
	}
	defer os.RemoveAll(intermediateSyncDir)

	intermediatePath := intermediateDir + "/" + uuid.NewString() + ".zarr"
	if err := os.MkdirAll(intermediatePath, 0o755); err != nil {
		return newConvertError(BadInputDataset, ErrBadInputDataset, "creating intermediate store directory", err)
	}
	intermediateURL := "file://" + intermediatePath
	intermediate, err := store.Open(ctx, intermediateURL, intermediateSyncDir)
	if err != nil {
		return newConvertError(BadInputDataset, ErrBadInputDataset, "opening intermediate store", err)
	}
	defer intermediate.Close()

	if err := intermediate.EnsureGroup(ctx, "/"); err != nil {
		return newConvertError(BadInputDataset, ErrBadInputDataset, "creating root group", err)
	}

	aggregatedPaths := map[string]bool{}
	if result != nil {
		if err := writeAggregatedDimensions(ctx, intermediate, result, aggregatedPaths); err != nil {
			return newConvertError(BadInputDataset, ErrBadInputDataset, "writing aggregated dimensions", err)
		}
	}

	w := &writer.Writer{Store: intermediate, Logger: logger, ChunkBudget: cfg.ChunkBudget}
	chunkShapes := writer.NewChunkShapeCache()
	pool := &workerpool.Pool{Requested: cfg.WorkerCount, Logger: logger}

	logger.Info("writing granules", zap.Int("granules", len(cfg.InputPaths)))
	err = pool.Run(ctx, cfg.InputPaths, func(ctx context.Context, granule string) error {
		return w.WriteDataset(ctx, datasetsByPath[granule], granule, result, aggregatedPaths, chunkShapes)
	})
	if err != nil {
		var crash *workerpool.WorkerCrash
		if errors.As(err, &crash) {
			return newConvertError(WorkerCrash, ErrWorkerCrash, crash.Error(), err)
		}
		var exc *workerpool.WorkerException
		if errors.As(err, &exc) {
			return newConvertError(WorkerException, ErrWorkerException, exc.Error(), err)
		}
		return newConvertError(WorkerException, ErrWorkerException, "worker pool failed", err)
	}

	logger.Info("finalizing intermediate store")
	if err := intermediate.Finalize(ctx); err != nil {
		return newConvertError(RechunkFailed, ErrRechunkFailed, "finalizing intermediate store", err)
	}

	tmpDir, err := os.MkdirTemp("", "netcdf2zarr-rechunk-scratch-*")
	if err != nil {
		return newConvertError(RechunkFailed, ErrRechunkFailed, "creating rechunk scratch directory", err)
	}
	defer os.RemoveAll(tmpDir)
	tmpURL := "file://" + tmpDir

	logger.Info("rechunking into destination store", zap.String("destination", cfg.Output.Root()))
	if err := rechunk.Rechunk(ctx, intermediate, cfg.Output.Root(), tmpURL, cfg.MemoryBudget, logger); err != nil {
		var rf *rechunk.FailedError
		if errors.As(err, &rf) {
			return newConvertError(RechunkFailed, ErrRechunkFailed, rf.Error(), err)
		}
		return newConvertError(RechunkFailed, ErrRechunkFailed, "rechunk failed", err)
	}

	logger.Info("removing intermediate store")
	if err := intermediate.DeleteAll(ctx); err != nil {
		logger.Warn("failed to clean up intermediate store", zap.Error(err))
	}
	// Only reached once rechunk has succeeded — spec.md §4.G: "[on rechunk
	// failure] the source store is not deleted". intermediateDir is removed
	// here, on the success path only, rather than via a blanket top-of-function
	// defer that would fire this exact cleanup on a RechunkFailed return too.
	if err := os.RemoveAll(intermediateDir); err != nil {
		logger.Warn("failed to remove intermediate scratch directory", zap.Error(err))
	}

	return nil
}

// writeAggregatedDimensions writes every aggregated dimension's values (and
// bounds, if present) once before workers start, per spec.md §5: "Dimension
// and bounds values for aggregated axes are written once before workers
// start, guaranteeing no worker races on them." It also populates
// aggregatedPaths with every path workers must not overwrite.
func writeAggregatedDimensions(ctx context.Context, s *store.Store, result *aggregate.Result, aggregatedPaths map[string]bool) error {
	for path, rec := range result.Output {
		aggregatedPaths[path] = true

		shape := []int{len(rec.Values)}
		meta, _, err := s.CreateOrGetArray(ctx, path, shape, shape, netcdf.Float64.ZarrDType(), 0)
		if err != nil {
			return fmt.Errorf("dimension %s: %w", path, err)
		}
		raw := netcdf.EncodeFloat64(rec.Values, netcdf.Float64)
		if err := s.WriteSlice(ctx, path, meta, netcdf.Float64.Size(), raw[:netcdf.Float64.Size()], []int{0}, shape, raw); err != nil {
			return fmt.Errorf("dimension %s: %w", path, err)
		}

		attrs := attrval.Map{"_ARRAY_DIMENSIONS": attrval.StringArray([]string{lastSegment(path)})}
		if rec.Units != nil {
			attrs["units"] = attrval.String(*rec.Units)
		}
		if err := s.WriteAttrs(ctx, path, nil, attrs); err != nil {
			return fmt.Errorf("dimension %s: attrs: %w", path, err)
		}
	}

	for boundsPath, governingPath := range result.OutputBounds {
		aggregatedPaths[boundsPath] = true
		rec := result.Output[governingPath]

		flat := make([]float64, 0, len(rec.BoundsValues)*2)
		for _, b := range rec.BoundsValues {
			flat = append(flat, b[0], b[1])
		}
		shape := []int{len(rec.BoundsValues), 2}
		meta, _, err := s.CreateOrGetArray(ctx, boundsPath, shape, shape, netcdf.Float64.ZarrDType(), 0)
		if err != nil {
			return fmt.Errorf("bounds %s: %w", boundsPath, err)
		}
		raw := netcdf.EncodeFloat64(flat, netcdf.Float64)
		if err := s.WriteSlice(ctx, boundsPath, meta, netcdf.Float64.Size(), raw[:netcdf.Float64.Size()], []int{0, 0}, shape, raw); err != nil {
			return fmt.Errorf("bounds %s: %w", boundsPath, err)
		}

		attrs := attrval.Map{"_ARRAY_DIMENSIONS": attrval.StringArray([]string{lastSegment(governingPath), "bounds"})}
		if err := s.WriteAttrs(ctx, boundsPath, nil, attrs); err != nil {
			return fmt.Errorf("bounds %s: attrs: %w", boundsPath, err)
		}
	}
	return nil
}

func lastSegment(path string) string {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
