// Package workerpool implements the bounded worker pool of spec.md §4.D:
// worker_count goroutines draining a shared queue of granules,
// abort-on-first-error, with deterministic cleanup. spec.md §9's design
// note redirects the OS-process/manager-namespace model of the original
// collaborator toward goroutines and a thread-safe synchronizer for a
// systems-language rewrite; this package uses golang.org/x/sync/errgroup
// for the supervisor/worker relationship, the same library the
// dolthub-dolt teacher's go.mod carries for bounded concurrent work.
package workerpool

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WorkerException reports that a worker's Do call returned an error — the
// WorkerException kind of spec.md §7. "The first message wins": only the
// first error observed across all workers is kept.
type WorkerException struct {
	Message string
}

func (e *WorkerException) Error() string { return fmt.Sprintf("worker: %s", e.Message) }

// WorkerCrash reports that a worker panicked — the Go analogue of an
// OS-level abnormal process exit with no caught exception (spec.md §7's
// WorkerCrash kind).
type WorkerCrash struct {
	Recovered interface{}
}

func (e *WorkerCrash) Error() string { return fmt.Sprintf("worker crashed: %v", e.Recovered) }

// WorkerCount implements the worker-count formula spec.md §9 mandates:
// min(requested, cpu_count, len(granules)) — by length, not the slice
// header itself, the bug fix spec.md §9's second open question calls for.
func WorkerCount(requested, numGranules int) int {
	n := runtime.NumCPU()
	if requested > 0 && requested < n {
		n = requested
	}
	if numGranules < n {
		n = numGranules
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Pool runs Do once per granule across WorkerCount(requested, len(granules))
// goroutines pulling from a shared queue, stopping at the first failure.
type Pool struct {
	Requested int
	Logger    *zap.Logger
}

// Run drains granules across the pool's workers, calling do(ctx, granule)
// for each. It returns the first error observed — wrapped as
// *WorkerException for a returned error, *WorkerCrash for a recovered
// panic — or nil if every granule was processed. Per spec.md §5,
// cancellation is cooperative: ctx is cancelled as soon as any worker
// fails, and peers exit on their next queue read or ctx check.
func (p *Pool) Run(ctx context.Context, granules []string, do func(ctx context.Context, granule string) error) error {
	if len(granules) == 0 {
		return nil
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	queue := make(chan string, len(granules))
	for _, g := range granules {
		queue <- g
	}
	close(queue)

	workerCount := WorkerCount(p.Requested, len(granules))
	logger.Info("starting worker pool", zap.Int("workers", workerCount), zap.Int("granules", len(granules)))

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		workerID := i
		group.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("worker crashed", zap.Int("worker", workerID), zap.Any("recovered", r))
					err = &WorkerCrash{Recovered: r}
				}
			}()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case granule, ok := <-queue:
					if !ok {
						return nil
					}
					if err := do(gctx, granule); err != nil {
						logger.Error("worker failed", zap.Int("worker", workerID), zap.String("granule", granule), zap.Error(err))
						return &WorkerException{Message: err.Error()}
					}
				}
			}
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("worker pool drained", zap.Int("granules", len(granules)))
	return nil
}
