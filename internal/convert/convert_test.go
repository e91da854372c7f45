package convert_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
	"github.com/harmony-services/netcdf-to-zarr/internal/convert"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
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

// granuleDataset builds a single-time-step fixture on a small 3x2 lat/lon
// grid shared by every granule, with its science variable filled with
// fillValue so each granule's slice is identifiable in the aggregated
// output.
func granuleDataset(timeValue float64, units string, fillValue float64) *netcdf.Dataset {
	root := netcdf.NewGroup("/", "")
	root.Variables["time"] = &netcdf.Variable{
		Name: "time", Path: "/time", Dimensions: []string{"time"},
		Shape: []int{1}, DType: netcdf.Float64,
		Attributes: attrval.Map{"units": attrval.String(units)},
		Data:       netcdf.EncodeFloat64([]float64{timeValue}, netcdf.Float64),
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
		data[i] = fillValue
	}
	root.Variables["data"] = &netcdf.Variable{
		Name: "data", Path: "/data", Dimensions: []string{"time", "lat", "lon"},
		Shape: []int{1, 3, 2}, DType: netcdf.Float64,
		Attributes: attrval.Map{"long_name": attrval.String("granule data")},
		Data:       netcdf.EncodeFloat64(data, netcdf.Float64),
	}
	return netcdf.NewFixtureDataset(root)
}

// TestConvert_TwoGranuleTemporalMosaic covers spec.md §8 scenario 2: two
// datasets sharing an epoch and spatial grid, times [30.0] and [1830.0],
// aggregated into one (2,3,2) output with slice 0 from the first input and
// slice 1 from the second.
func TestConvert_TwoGranuleTemporalMosaic(t *testing.T) {
	ctx := context.Background()

	const units = "seconds since 2020-01-27T14:00:00Z"
	datasets := map[string]*netcdf.Dataset{
		"a.nc": granuleDataset(30.0, units, 1),
		"b.nc": granuleDataset(1830.0, units, 2),
	}

	dest := openTestStore(t)

	err := convert.Convert(ctx, convert.Config{
		InputPaths: []string{"a.nc", "b.nc"},
		Output:     dest,
		OpenDataset: func(path string) (*netcdf.Dataset, error) {
			ds, ok := datasets[path]
			if !ok {
				return nil, fmt.Errorf("no fixture for %s", path)
			}
			return ds, nil
		},
	})
	require.NoError(t, err)

	timeMeta, err := dest.ReadArrayMeta(ctx, "/time")
	require.NoError(t, err)
	require.Equal(t, []int{2}, timeMeta.Shape)
	timeRaw, ok, err := dest.ReadChunkRaw(ctx, "/time", timeMeta, make([]int, len(timeMeta.Chunks)))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float64{30, 1830}, decodeFloat64(timeRaw)[:2])

	dataMeta, err := dest.ReadArrayMeta(ctx, "/data")
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 2}, dataMeta.Shape)

	attrs, err := dest.ReadAttrs(ctx, "/data")
	require.NoError(t, err)
	require.Equal(t, `["time","lat","lon"]`, string(attrs["_ARRAY_DIMENSIONS"]))

	// Walk every destination chunk covering the full (2,3,2) array and
	// assert slice 0 is entirely granule a's fill value and slice 1 entirely
	// granule b's, i.e. no shared-chunk read-merge-write dropped either
	// granule's write.
	for t0 := 0; t0 < 2; t0++ {
		want := 1.0
		if t0 == 1 {
			want = 2.0
		}
		for lat := 0; lat < 3; lat++ {
			for lon := 0; lon < 2; lon++ {
				chunkIdx := make([]int, len(dataMeta.Chunks))
				global := []int{t0, lat, lon}
				for i, c := range dataMeta.Chunks {
					chunkIdx[i] = global[i] / c
				}
				raw, ok, err := dest.ReadChunkRaw(ctx, "/data", dataMeta, chunkIdx)
				require.NoError(t, err)
				require.True(t, ok)
				values := decodeFloat64(raw)
				offset := 0
				stride := 1
				for i := len(dataMeta.Chunks) - 1; i >= 0; i-- {
					local := global[i] % dataMeta.Chunks[i]
					offset += local * stride
					stride *= dataMeta.Chunks[i]
				}
				require.Equalf(t, want, values[offset], "global index %v", global)
			}
		}
	}
}

// corruptGranuleDataset builds a dataset whose dimension variables are
// well-formed (so the aggregation pass preceding the worker pool succeeds
// normally) but whose "data" variable's raw bytes are truncated relative
// to its declared shape (capacity included, so reslicing past the end
// cannot silently reach the original bytes), so the write-slice merge
// inside the worker that processes it indexes past the end of the buffer
// and panics — standing in for an unannounced abnormal worker exit
// (spec.md §8 scenario 6) without needing a real OS process to kill.
func corruptGranuleDataset(timeValue float64, units string) *netcdf.Dataset {
	ds := granuleDataset(timeValue, units, 1)
	v := ds.Root.Variables["data"]
	v.Data = v.Data[:8:8]
	return ds
}

// TestConvert_WorkerCrashPropagates covers spec.md §8 scenario 6: one of
// three workers crashes and Convert must surface a *convert.ConvertError
// wrapping ErrWorkerCrash, with no destination metadata written —
// finalize/rechunk never runs since the worker pool aborts first.
func TestConvert_WorkerCrashPropagates(t *testing.T) {
	ctx := context.Background()

	const units = "seconds since 2020-01-01T00:00:00Z"
	datasets := map[string]*netcdf.Dataset{
		"a.nc": granuleDataset(0, units, 1),
		"b.nc": granuleDataset(86400, units, 2),
		"c.nc": corruptGranuleDataset(432000, units),
	}

	dest := openTestStore(t)

	err := convert.Convert(ctx, convert.Config{
		InputPaths: []string{"a.nc", "b.nc", "c.nc"},
		Output:     dest,
		OpenDataset: func(path string) (*netcdf.Dataset, error) {
			return datasets[path], nil
		},
	})
	require.Error(t, err)

	var convErr *convert.ConvertError
	require.ErrorAs(t, err, &convErr)
	require.Equal(t, convert.WorkerCrash, convErr.ExceptionType)
	require.ErrorIs(t, err, convert.ErrWorkerCrash)

	meta, err := dest.ReadArrayMeta(ctx, "/data")
	require.NoError(t, err)
	require.Nil(t, meta, "no partial consolidated metadata should reach the destination root")
}
