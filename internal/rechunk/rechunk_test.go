package rechunk_test

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
	"github.com/harmony-services/netcdf-to-zarr/internal/rechunk"
	"github.com/harmony-services/netcdf-to-zarr/internal/store"
	"github.com/stretchr/testify/require"

	_ "gocloud.dev/blob/fileblob"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "file://"+t.TempDir(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func decodeFloat64(raw []byte) []float64 {
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out
}

// buildSource writes a root group containing a "time" coordinate (chunked
// as one chunk of 4) and a "data" variable chunked 1-at-a-time along its
// only axis — the shape the rechunker is meant to retile into fewer, larger
// chunks while leaving "time" alone (spec.md §4.G step 2).
func buildSource(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.EnsureGroup(ctx, "/"))

	timeMeta, _, err := s.CreateOrGetArray(ctx, "/time", []int{4}, []int{4}, netcdf.Float64.ZarrDType(), 0)
	require.NoError(t, err)
	require.NoError(t, s.WriteSlice(ctx, "/time", timeMeta, 8, make([]byte, 8), []int{0}, []int{4}, netcdf.EncodeFloat64([]float64{0, 1, 2, 3}, netcdf.Float64)))
	require.NoError(t, s.WriteAttrs(ctx, "/time", attrval.Map{"_ARRAY_DIMENSIONS": attrval.StringArray([]string{"time"})}, nil))

	dataMeta, _, err := s.CreateOrGetArray(ctx, "/data", []int{4}, []int{1}, netcdf.Float64.ZarrDType(), 0)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.WriteSlice(ctx, "/data", dataMeta, 8, make([]byte, 8), []int{i}, []int{1}, netcdf.EncodeFloat64([]float64{float64(i) * 10}, netcdf.Float64)))
	}
	require.NoError(t, s.WriteAttrs(ctx, "/data", attrval.Map{"_ARRAY_DIMENSIONS": attrval.StringArray([]string{"time"})}, nil))

	require.NoError(t, s.Finalize(ctx))
	return s
}

func TestRechunk_PreservesCoordinateChunkingAndRechunksData(t *testing.T) {
	ctx := context.Background()
	src := buildSource(t)

	dstDir := t.TempDir()
	dstURL := "file://" + dstDir
	err := rechunk.Rechunk(ctx, src, dstURL, "", 0, nil)
	require.NoError(t, err)

	dst, err := store.Open(ctx, dstURL, t.TempDir())
	require.NoError(t, err)
	defer dst.Close()

	timeMeta, err := dst.ReadArrayMeta(ctx, "/time")
	require.NoError(t, err)
	require.Equal(t, []int{4}, timeMeta.Chunks, "coordinate chunking must be preserved")

	dataMeta, err := dst.ReadArrayMeta(ctx, "/data")
	require.NoError(t, err)
	require.NotEqual(t, []int{1}, dataMeta.Chunks, "data variable should have been rechunked by the planner")

	raw, ok, err := dst.ReadChunkRaw(ctx, "/data", dataMeta, []int{0})
	require.NoError(t, err)
	require.True(t, ok)
	values := decodeFloat64(raw)
	require.Equal(t, []float64{0, 10, 20, 30}, values[:4])
}

func TestRechunk_SourceRetainedOnFailure(t *testing.T) {
	ctx := context.Background()
	src := buildSource(t)

	// A memory budget smaller than a single element forces the planner to
	// refuse every destination chunk — spec.md §4.G's RechunkFailed path,
	// which must leave the source store untouched (not deleted by Rechunk
	// itself; internal/convert only removes it after Rechunk succeeds).
	err := rechunk.Rechunk(ctx, src, "file://"+t.TempDir(), "", 1, nil)
	require.Error(t, err)

	meta, err := src.ReadArrayMeta(ctx, "/data")
	require.NoError(t, err)
	require.NotNil(t, meta, "source store must still be readable after a failed rechunk")
}
