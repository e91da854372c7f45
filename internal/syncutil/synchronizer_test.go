package syncutil_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harmony-services/netcdf-to-zarr/internal/syncutil"
	"github.com/stretchr/testify/require"
)

func TestSynchronizer_MutualExclusionSameKey(t *testing.T) {
	s, err := syncutil.New(t.TempDir())
	require.NoError(t, err)

	var active int32
	var maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := s.Lock("array-a")
			require.NoError(t, err)
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, maxActive, "no two goroutines should hold the same key's lock at once")
}

func TestSynchronizer_DistinctKeysDoNotBlock(t *testing.T) {
	s, err := syncutil.New(t.TempDir())
	require.NoError(t, err)

	unlockA, err := s.Lock("array-a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := s.Lock("array-b")
		require.NoError(t, err)
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("locking a distinct key should not block on array-a's lock")
	}
}
