package aggregate_test

import (
	"context"
	"testing"

	"github.com/harmony-services/netcdf-to-zarr/internal/aggregate"
	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
	"github.com/stretchr/testify/require"
)

// timeDataset builds a minimal fixture dataset with a single self-describing
// "time" dimension variable (and, if bounds is non-nil, a "time_bnds"
// companion), the shape every aggregator test needs.
func timeDataset(values []float64, units string, bounds [][2]float64) *netcdf.Dataset {
	root := netcdf.NewGroup("/", "")
	attrs := attrval.Map{}
	if units != "" {
		attrs["units"] = attrval.String(units)
	}
	if bounds != nil {
		attrs["bounds"] = attrval.String("time_bnds")
	}
	root.Variables["time"] = &netcdf.Variable{
		Name: "time", Path: "/time", Dimensions: []string{"time"},
		Shape: []int{len(values)}, DType: netcdf.Float64,
		Attributes: attrs,
		Data:       netcdf.EncodeFloat64(values, netcdf.Float64),
	}
	if bounds != nil {
		flat := make([]float64, 0, len(bounds)*2)
		for _, b := range bounds {
			flat = append(flat, b[0], b[1])
		}
		root.Variables["time_bnds"] = &netcdf.Variable{
			Name: "time_bnds", Path: "/time_bnds",
			Shape: []int{len(bounds), 2}, DType: netcdf.Float64,
			Data: netcdf.EncodeFloat64(flat, netcdf.Float64),
		}
	}
	return netcdf.NewFixtureDataset(root)
}

func TestAggregate_SinglePassthrough_NoOutput(t *testing.T) {
	ds := timeDataset([]float64{30}, "seconds since 2020-01-27T14:00:00Z", nil)
	inputDims, result, err := aggregate.Aggregate(context.Background(), []aggregate.Input{
		{Path: "a.nc", Dataset: ds},
	})
	require.NoError(t, err)
	require.Nil(t, result)
	require.Contains(t, inputDims, "/time")
}

func TestAggregate_TwoGranuleSameEpoch(t *testing.T) {
	a := timeDataset([]float64{30}, "seconds since 2020-01-27T14:00:00Z", nil)
	b := timeDataset([]float64{1830}, "seconds since 2020-01-27T14:00:00Z", nil)

	_, result, err := aggregate.Aggregate(context.Background(), []aggregate.Input{
		{Path: "a.nc", Dataset: a},
		{Path: "b.nc", Dataset: b},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	out, ok := result.Output["/time"]
	require.True(t, ok)
	require.Equal(t, []float64{30, 1830}, out.Values)
}

func TestAggregate_TwoGranuleDifferentEpochs(t *testing.T) {
	a := timeDataset(sequence(0, 60, 24), "minutes since 2020-01-01T00:30:00Z", nil)
	b := timeDataset(sequence(0, 60, 24), "minutes since 2020-01-02T00:30:00Z", nil)

	_, result, err := aggregate.Aggregate(context.Background(), []aggregate.Input{
		{Path: "a.nc", Dataset: a},
		{Path: "b.nc", Dataset: b},
	})
	require.NoError(t, err)

	out := result.Output["/time"]
	require.Equal(t, "minutes since 2020-01-01T00:30:00Z", *out.Units)
	require.Equal(t, sequence(0, 60, 48), out.Values)
}

func TestAggregate_GapBridged(t *testing.T) {
	day := 86400.0
	a := timeDataset([]float64{0}, "seconds since 2020-01-01T00:00:00Z", nil)
	b := timeDataset([]float64{2 * day}, "seconds since 2020-01-01T00:00:00Z", nil)
	c := timeDataset([]float64{5 * day}, "seconds since 2020-01-01T00:00:00Z", nil)

	_, result, err := aggregate.Aggregate(context.Background(), []aggregate.Input{
		{Path: "a.nc", Dataset: a},
		{Path: "b.nc", Dataset: b},
		{Path: "c.nc", Dataset: c},
	})
	require.NoError(t, err)

	out := result.Output["/time"]
	require.Equal(t, sequence(0, day, 6), out.Values)
}

func TestAggregate_BoundsGapFilledByMedianOffset(t *testing.T) {
	day := 86400.0
	units := "seconds since 2020-01-01T00:00:00Z"

	// File A covers output indices 0,1,2 with exact bounds.
	a := timeDataset(
		[]float64{0, day, 2 * day}, units,
		[][2]float64{{-0.5 * day, 0.5 * day}, {0.5 * day, 1.5 * day}, {1.5 * day, 2.5 * day}},
	)
	// File B covers output indices 9,10,11 with exact bounds.
	b := timeDataset(
		[]float64{9 * day, 10 * day, 11 * day}, units,
		[][2]float64{{8.5 * day, 9.5 * day}, {9.5 * day, 10.5 * day}, {10.5 * day, 11.5 * day}},
	)

	_, result, err := aggregate.Aggregate(context.Background(), []aggregate.Input{
		{Path: "a.nc", Dataset: a},
		{Path: "b.nc", Dataset: b},
	})
	require.NoError(t, err)

	out := result.Output["/time"]
	require.Len(t, out.Values, 12)
	require.Len(t, out.BoundsValues, 12)

	require.InDelta(t, -0.5*day, out.BoundsValues[0][0], 1e-6)
	require.InDelta(t, 0.5*day, out.BoundsValues[0][1], 1e-6)
	require.InDelta(t, 10.5*day, out.BoundsValues[11][0], 1e-6)
	require.InDelta(t, 11.5*day, out.BoundsValues[11][1], 1e-6)

	// Gap rows 3..8 use the median 0.5-day offsets observed on both sides.
	for i := 3; i <= 8; i++ {
		require.InDelta(t, out.Values[i]-0.5*day, out.BoundsValues[i][0], 1e-6)
		require.InDelta(t, out.Values[i]+0.5*day, out.BoundsValues[i][1], 1e-6)
	}
}

func TestAggregate_MixedTemporalAndNonTemporal_Fails(t *testing.T) {
	a := timeDataset([]float64{0}, "seconds since 2020-01-01T00:00:00Z", nil)
	b := timeDataset([]float64{1}, "", nil) // no "units" -> non-temporal

	_, _, err := aggregate.Aggregate(context.Background(), []aggregate.Input{
		{Path: "a.nc", Dataset: a},
		{Path: "b.nc", Dataset: b},
	})
	require.Error(t, err)
	var mixed *aggregate.MixedDimensionTypeError
	require.ErrorAs(t, err, &mixed)
	require.Equal(t, "/time", mixed.Path)
}

func sequence(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
