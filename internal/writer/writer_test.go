package writer_test

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/harmony-services/netcdf-to-zarr/internal/aggregate"
	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
	"github.com/harmony-services/netcdf-to-zarr/internal/dimension"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
	"github.com/harmony-services/netcdf-to-zarr/internal/store"
	"github.com/harmony-services/netcdf-to-zarr/internal/writer"
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

// onesDataset builds a single-granule fixture with lat/lon/time dimensions
// and a ones-filled science variable: spec.md §8 scenario 1 reduced to a
// 3x2 lat/lon grid.
func onesDataset() *netcdf.Dataset {
	root := netcdf.NewGroup("/", "")
	root.Variables["time"] = &netcdf.Variable{
		Name: "time", Path: "/time", Dimensions: []string{"time"},
		Shape: []int{1}, DType: netcdf.Float64,
		Attributes: attrval.Map{"units": attrval.String("seconds since 2020-01-27T14:00:00Z")},
		Data:       netcdf.EncodeFloat64([]float64{30}, netcdf.Float64),
	}
	root.Variables["lat"] = &netcdf.Variable{
		Name: "lat", Path: "/lat", Dimensions: []string{"lat"},
		Shape: []int{3}, DType: netcdf.Float64,
		Data: netcdf.EncodeFloat64([]float64{-10, 0, 10}, netcdf.Float64),
	}
	root.Variables["lon"] = &netcdf.Variable{
		Name: "lon", Path: "/lon", Dimensions: []string{"lon"},
		Shape: []int{2}, DType: netcdf.Float64,
		Data: netcdf.EncodeFloat64([]float64{-10, 10}, netcdf.Float64),
	}
	data := make([]float64, 1*3*2)
	for i := range data {
		data[i] = 1
	}
	root.Variables["data"] = &netcdf.Variable{
		Name: "data", Path: "/data", Dimensions: []string{"time", "lat", "lon"},
		Shape: []int{1, 3, 2}, DType: netcdf.Float64,
		Attributes: attrval.Map{"long_name": attrval.String("ones")},
		Data:       netcdf.EncodeFloat64(data, netcdf.Float64),
	}
	return netcdf.NewFixtureDataset(root)
}

func readFloat64Chunk(t *testing.T, s *store.Store, path string, indices []int) []float64 {
	t.Helper()
	ctx := context.Background()
	meta, err := s.ReadArrayMeta(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, meta)
	raw, ok, err := s.ReadChunkRaw(ctx, path, meta, indices)
	require.NoError(t, err)
	require.True(t, ok)
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return out
}

func TestWriteDataset_SingleGranulePassthrough(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.EnsureGroup(ctx, "/"))

	w := &writer.Writer{Store: s}
	err := w.WriteDataset(ctx, onesDataset(), "granule.nc", nil, map[string]bool{}, writer.NewChunkShapeCache())
	require.NoError(t, err)

	meta, err := s.ReadArrayMeta(ctx, "/data")
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 2}, meta.Shape)

	raw, err := s.ReadAttrs(ctx, "/data")
	require.NoError(t, err)
	require.Equal(t, `["time","lat","lon"]`, string(raw["_ARRAY_DIMENSIONS"]))

	values := readFloat64Chunk(t, s, "/data", []int{0, 0, 0})
	for _, v := range values[:6] {
		require.Equal(t, 1.0, v)
	}
}

func TestWriteDataset_AggregatedPathsNotOverwritten(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.EnsureGroup(ctx, "/"))

	meta, _, err := s.CreateOrGetArray(ctx, "/time", []int{2}, []int{2}, netcdf.Float64.ZarrDType(), 0)
	require.NoError(t, err)
	require.NoError(t, s.WriteSlice(ctx, "/time", meta, 8, netcdf.EncodeFloat64([]float64{0}, netcdf.Float64), []int{0}, []int{2}, netcdf.EncodeFloat64([]float64{30, 1830}, netcdf.Float64)))

	w := &writer.Writer{Store: s}
	aggregatedPaths := map[string]bool{"/time": true}
	aggregated := &aggregate.Result{Output: map[string]*dimension.Record{
		"/time": {Path: "/time", Values: []float64{30, 1830}},
	}}
	err = w.WriteDataset(ctx, onesDataset(), "granule.nc", aggregated, aggregatedPaths, writer.NewChunkShapeCache())
	require.NoError(t, err)

	values := readFloat64Chunk(t, s, "/time", []int{0})
	require.Equal(t, []float64{30, 1830}, values)
}
