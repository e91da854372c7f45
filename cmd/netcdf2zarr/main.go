// Command netcdf2zarr converts one or more NetCDF-4/HDF5 granules into a
// single aggregated Zarr v2 store, per spec.md §6's Go entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harmony-services/netcdf-to-zarr/internal/chunkplan"
	"github.com/harmony-services/netcdf-to-zarr/internal/convert"
	"github.com/harmony-services/netcdf-to-zarr/internal/logging"
	"github.com/harmony-services/netcdf-to-zarr/internal/store"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		output           = flag.String("output", "", "destination Zarr store URL (an existing file:// directory; no other blob drivers are linked in)")
		workers          = flag.Int("workers", 0, "worker count; 0 selects min(cpus, granules)")
		targetBytes      = flag.String("target-chunk-bytes", "4Mi", "target compressed chunk size, e.g. 4Mi, 512Ki, 1Gi")
		compressionRatio = flag.Float64("compression-ratio", chunkplan.DefaultCompressionRatio, "assumed uncompressed/compressed ratio used when sizing chunks")
		memoryBudget     = flag.String("memory-budget", "512Mi", "resident-memory budget for the rechunk pass")
		syncDir          = flag.String("sync-dir", "", "directory for the output store's cross-process lock file; defaults to a temp directory")
		dev              = flag.Bool("dev", false, "use a development-profile console logger instead of JSON")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] input.nc [input.nc ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		return fmt.Errorf("at least one input granule is required")
	}
	if *output == "" {
		flag.Usage()
		return fmt.Errorf("-output is required")
	}

	logger, err := logging.New(*dev)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	target, err := chunkplan.ParseByteSize(*targetBytes)
	if err != nil {
		return err
	}
	memBudget, err := chunkplan.ParseByteSize(*memoryBudget)
	if err != nil {
		return err
	}

	dir := *syncDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "netcdf2zarr-sync-*")
		if err != nil {
			return fmt.Errorf("creating sync directory: %w", err)
		}
		defer os.RemoveAll(dir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outStore, err := store.Open(ctx, *output, dir)
	if err != nil {
		return fmt.Errorf("opening output store %s: %w", *output, err)
	}
	defer outStore.Close()

	cfg := convert.Config{
		InputPaths:  inputs,
		Output:      outStore,
		Logger:      logger,
		WorkerCount: *workers,
		ChunkBudget: chunkplan.Spec{
			CompressionRatio: *compressionRatio,
			TargetBytes:      target,
		},
		MemoryBudget: int64(memBudget),
	}

	logger.Info("starting conversion",
		zap.Strings("inputs", inputs),
		zap.String("output", *output),
	)

	if err := convert.Convert(ctx, cfg); err != nil {
		var convErr *convert.ConvertError
		if errors.As(err, &convErr) {
			return fmt.Errorf("%s: %s", convErr.ExceptionType, strings.TrimSpace(convErr.Error()))
		}
		return err
	}

	logger.Info("conversion complete", zap.String("output", *output))
	return nil
}
