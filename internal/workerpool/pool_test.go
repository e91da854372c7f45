package workerpool_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/harmony-services/netcdf-to-zarr/internal/workerpool"
	"github.com/stretchr/testify/require"
)

func TestWorkerCount_FormulaUsesLength(t *testing.T) {
	// spec.md §9's second open question: min(requested, cpu_count,
	// len(inputs)), by slice length rather than the slice header itself.
	require.Equal(t, 1, workerpool.WorkerCount(5, 1))
	require.LessOrEqual(t, workerpool.WorkerCount(0, 100), 100)
	require.Equal(t, 3, workerpool.WorkerCount(3, 100))
}

func TestPool_Run_ProcessesEveryGranule(t *testing.T) {
	granules := []string{"a", "b", "c", "d", "e"}
	var mu sync.Mutex
	seen := map[string]bool{}

	pool := &workerpool.Pool{Requested: 2}
	err := pool.Run(context.Background(), granules, func(ctx context.Context, g string) error {
		mu.Lock()
		seen[g] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, len(granules))
}

func TestPool_Run_AbortsOnFirstError(t *testing.T) {
	granules := []string{"a", "b", "c", "d"}
	pool := &workerpool.Pool{Requested: 4}

	err := pool.Run(context.Background(), granules, func(ctx context.Context, g string) error {
		if g == "b" {
			return fmt.Errorf("boom")
		}
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	var exc *workerpool.WorkerException
	require.ErrorAs(t, err, &exc)
	require.Contains(t, exc.Error(), "boom")
}

func TestPool_Run_RecoversPanicAsWorkerCrash(t *testing.T) {
	granules := []string{"a"}
	pool := &workerpool.Pool{Requested: 1}

	err := pool.Run(context.Background(), granules, func(ctx context.Context, g string) error {
		panic("unexpected")
	})
	require.Error(t, err)
	var crash *workerpool.WorkerCrash
	require.ErrorAs(t, err, &crash)
}

func TestPool_Run_EmptyGranuleListIsNoop(t *testing.T) {
	pool := &workerpool.Pool{Requested: 4}
	err := pool.Run(context.Background(), nil, func(ctx context.Context, g string) error {
		t.Fatal("do should never be called")
		return nil
	})
	require.NoError(t, err)
}
