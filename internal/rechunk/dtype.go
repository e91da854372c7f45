package rechunk

import (
	"fmt"

	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
)

// dtypeFromZarr is the inverse of netcdf.DType.ZarrDType: it recovers the
// element type chunkplan.Plan needs from the ".zarray" dtype string a
// previous pass wrote. Grounded on TuSKan-go-zarr's zarr.ParseDType, here
// mapping to the enum internal/chunkplan's Spec expects rather than to a
// bare byte size (internal/store.ParseDType already covers that narrower
// need for buffer sizing).
func dtypeFromZarr(s string) (netcdf.DType, error) {
	switch s {
	case "<f4":
		return netcdf.Float32, nil
	case "<f8":
		return netcdf.Float64, nil
	case "|i1":
		return netcdf.Int8, nil
	case "<i2":
		return netcdf.Int16, nil
	case "<i4":
		return netcdf.Int32, nil
	case "<i8":
		return netcdf.Int64, nil
	case "|u1":
		return netcdf.Uint8, nil
	case "<u2":
		return netcdf.Uint16, nil
	case "<u4":
		return netcdf.Uint32, nil
	case "<u8":
		return netcdf.Uint64, nil
	case "|b1":
		return netcdf.Bool, nil
	default:
		return 0, fmt.Errorf("rechunk: unsupported dtype %q", s)
	}
}
