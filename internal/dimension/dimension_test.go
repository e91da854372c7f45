package dimension_test

import (
	"testing"
	"time"

	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
	"github.com/harmony-services/netcdf-to-zarr/internal/dimension"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
	"github.com/stretchr/testify/require"
)

func datasetWithTime(t *testing.T, values []float64, units string) *netcdf.Dataset {
	t.Helper()
	root := netcdf.NewGroup("/", "")
	v := &netcdf.Variable{
		Name:       "time",
		Path:       "/time",
		Dimensions: []string{"time"},
		Shape:      []int{len(values)},
		DType:      netcdf.Float64,
		Attributes: attrval.Map{"units": attrval.String(units)},
		Data:       netcdf.EncodeFloat64(values, netcdf.Float64),
	}
	root.Variables["time"] = v
	return datasetFromRoot(root)
}

func datasetFromRoot(root *netcdf.Group) *netcdf.Dataset {
	// netcdf.Open always reads from disk, so tests wrap an in-memory group
	// tree with the exported netcdf.NewFixtureDataset constructor instead.
	return netcdf.NewFixtureDataset(root)
}

func TestFromVariable_Temporal(t *testing.T) {
	ds := datasetWithTime(t, []float64{30, 1830}, "seconds since 2020-01-27T14:00:00Z")
	v, ok := ds.Variable("/time")
	require.True(t, ok)

	r, err := dimension.FromVariable(ds, v)
	require.NoError(t, err)
	require.True(t, r.IsTemporal())
	require.Equal(t, dimension.Second, r.TimeUnit)
	require.Equal(t, []float64{30, 1830}, r.Values)
	require.Equal(t, time.Date(2020, 1, 27, 14, 0, 0, 0, time.UTC), *r.Epoch)
}

func TestFromVariable_NonTemporal(t *testing.T) {
	ds := datasetWithTime(t, []float64{-90, -80, -70}, "degrees_north")
	v, ok := ds.Variable("/time")
	require.True(t, ok)

	r, err := dimension.FromVariable(ds, v)
	require.NoError(t, err)
	require.False(t, r.IsTemporal())
}

func TestValuesIn_ConvertsAcrossEpochsAndUnits(t *testing.T) {
	ds := datasetWithTime(t, []float64{0, 24}, "hours since 2020-01-02T00:30:00Z")
	v, _ := ds.Variable("/time")
	r, err := dimension.FromVariable(ds, v)
	require.NoError(t, err)

	outEpoch := time.Date(2020, 1, 1, 0, 30, 0, 0, time.UTC)
	got := r.ValuesIn(outEpoch, dimension.Minute)
	require.Equal(t, []float64{24 * 60, 48 * 60}, got)
}

func TestValuesIn_NonTemporalUnchanged(t *testing.T) {
	ds := datasetWithTime(t, []float64{1, 2, 3}, "")
	v, _ := ds.Variable("/time")
	r, err := dimension.FromVariable(ds, v)
	require.NoError(t, err)

	got := r.ValuesIn(time.Now(), dimension.Second)
	require.Equal(t, []float64{1, 2, 3}, got)
}

func TestFromVariable_ResolvesBounds(t *testing.T) {
	root := netcdf.NewGroup("/", "")
	root.Variables["time"] = &netcdf.Variable{
		Name: "time", Path: "/time", Shape: []int{2}, DType: netcdf.Float64,
		Attributes: attrval.Map{
			"units":  attrval.String("days since 2020-01-01T00:00:00Z"),
			"bounds": attrval.String("time_bnds"),
		},
		Data: netcdf.EncodeFloat64([]float64{0, 1}, netcdf.Float64),
	}
	root.Variables["time_bnds"] = &netcdf.Variable{
		Name: "time_bnds", Path: "/time_bnds", Shape: []int{2, 2}, DType: netcdf.Float64,
		Data: netcdf.EncodeFloat64([]float64{-0.5, 0.5, 0.5, 1.5}, netcdf.Float64),
	}
	ds := datasetFromRoot(root)
	v, _ := ds.Variable("/time")

	r, err := dimension.FromVariable(ds, v)
	require.NoError(t, err)
	require.NotNil(t, r.BoundsPath)
	require.Equal(t, "/time_bnds", *r.BoundsPath)
	require.Equal(t, [][2]float64{{-0.5, 0.5}, {0.5, 1.5}}, r.BoundsValues)
}
