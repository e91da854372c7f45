package netcdf_test

import (
	"testing"

	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFloat64_RoundTrip(t *testing.T) {
	for _, dtype := range []netcdf.DType{
		netcdf.Float32, netcdf.Float64,
		netcdf.Int8, netcdf.Int16, netcdf.Int32, netcdf.Int64,
		netcdf.Uint8, netcdf.Uint16, netcdf.Uint32, netcdf.Uint64,
	} {
		values := []float64{0, 1, 2, 100}
		raw := netcdf.EncodeFloat64(values, dtype)
		v := &netcdf.Variable{Shape: []int{len(values)}, DType: dtype, Data: raw}
		got, err := v.Float64Values()
		require.NoError(t, err, "dtype %v", dtype)
		require.Equal(t, values, got, "dtype %v", dtype)
	}
}

func TestDType_SizeAndZarrDType(t *testing.T) {
	cases := []struct {
		dtype netcdf.DType
		size  int
		zarr  string
	}{
		{netcdf.Float32, 4, "<f4"},
		{netcdf.Float64, 8, "<f8"},
		{netcdf.Int8, 1, "|i1"},
		{netcdf.Int16, 2, "<i2"},
		{netcdf.Int32, 4, "<i4"},
		{netcdf.Int64, 8, "<i8"},
		{netcdf.Uint8, 1, "|u1"},
		{netcdf.Uint16, 2, "<u2"},
		{netcdf.Uint32, 4, "<u4"},
		{netcdf.Uint64, 8, "<u8"},
		{netcdf.Bool, 1, "|b1"},
	}
	for _, c := range cases {
		require.Equal(t, c.size, c.dtype.Size())
		require.Equal(t, c.zarr, c.dtype.ZarrDType())
	}
}

func TestDataset_WalkAndLookup(t *testing.T) {
	root := netcdf.NewGroup("/", "")
	child := netcdf.NewGroup("/child", "child")
	child.Variables["v"] = &netcdf.Variable{Name: "v", Path: "/child/v", Shape: []int{1}, DType: netcdf.Float64, Data: netcdf.EncodeFloat64([]float64{42}, netcdf.Float64)}
	root.Groups["child"] = child

	ds := netcdf.NewFixtureDataset(root)

	var visited []string
	ds.Walk(func(g *netcdf.Group) { visited = append(visited, g.Path) })
	require.ElementsMatch(t, []string{"/", "/child"}, visited)

	g, ok := ds.Group("/child")
	require.True(t, ok)
	require.Equal(t, "child", g.Name)

	v, ok := ds.Variable("/child/v")
	require.True(t, ok)
	values, err := v.Float64Values()
	require.NoError(t, err)
	require.Equal(t, []float64{42}, values)

	_, ok = ds.Variable("/nonexistent")
	require.False(t, ok)
}
