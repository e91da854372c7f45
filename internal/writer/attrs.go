package writer

import (
	"github.com/harmony-services/netcdf-to-zarr/internal/attrval"
	"github.com/harmony-services/netcdf-to-zarr/internal/netcdf"
)

// unscaledAttributes lists the attributes that, in the source file, are
// expressed in scaled units even though this writer copies variable values
// unscaled (raw on-disk integers, spec.md §4.E step 2). Grounded on
// harmony_netcdf_to_zarr/convert.py's `unscaled_attributes` constant.
var unscaledAttributes = []string{"valid_range", "valid_min", "valid_max", "_FillValue", "missing_value"}

// applyScaleCorrection implements the supplemented scale/offset attribute
// correction: when v carries a non-identity scale_factor/add_offset, the
// five unscaledAttributes are themselves recorded in scaled units in the
// source and must be re-expressed in unscaled units before being written,
// or a downstream reader that applies scale_factor/add_offset to the data
// would double-apply the transform to these attributes too. scale_factor
// and add_offset themselves are left untouched on the attribute map, per
// spec.md §4.E step 2 ("any scale/offset remain as attributes").
func applyScaleCorrection(v *netcdf.Variable, overrides attrval.Map) {
	scale, offset := 1.0, 0.0
	if sv, ok := v.Attributes["scale_factor"]; ok {
		if f, ok := sv.AsFloat64(); ok {
			scale = f
		}
	}
	if ov, ok := v.Attributes["add_offset"]; ok {
		if f, ok := ov.AsFloat64(); ok {
			offset = f
		}
	}
	if scale == 1.0 && offset == 0.0 {
		return
	}

	for _, name := range unscaledAttributes {
		val, ok := v.Attributes[name]
		if !ok {
			continue
		}
		overrides[name] = scaleValue(val, scale, offset)
	}
}

func scaleValue(v attrval.Value, scale, offset float64) attrval.Value {
	switch v.Kind() {
	case attrval.Float64ArrayKind, attrval.Int64ArrayKind:
		arr, _ := v.Interface().([]float64)
		if arr == nil {
			if ints, ok := v.Interface().([]int64); ok {
				arr = make([]float64, len(ints))
				for i, x := range ints {
					arr[i] = float64(x)
				}
			}
		}
		out := make([]float64, len(arr))
		for i, x := range arr {
			out[i] = (x - offset) / scale
		}
		return attrval.Float64Array(out)
	default:
		f, _ := v.AsFloat64()
		return attrval.Float64((f - offset) / scale)
	}
}
