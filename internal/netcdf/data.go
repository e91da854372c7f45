package netcdf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Float64Values decodes the variable's raw bytes into a flat []float64,
// widening narrower numeric types. This is the Go analogue of numpy's
// implicit upcast when dimension values (always small 1-D arrays) are read
// for aggregation.
func (v *Variable) Float64Values() ([]float64, error) {
	n := elementCount(v.Shape)
	out := make([]float64, n)
	sz := v.DType.Size()
	if sz == 0 {
		return nil, fmt.Errorf("netcdf: variable %s has unknown element size", v.Path)
	}
	if len(v.Data) < n*sz {
		return nil, fmt.Errorf("netcdf: variable %s data too short: have %d bytes, need %d", v.Path, len(v.Data), n*sz)
	}
	for i := 0; i < n; i++ {
		off := i * sz
		switch v.DType {
		case Float32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(v.Data[off:])))
		case Float64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(v.Data[off:]))
		case Int8:
			out[i] = float64(int8(v.Data[off]))
		case Uint8, Bool:
			out[i] = float64(v.Data[off])
		case Int16:
			out[i] = float64(int16(binary.LittleEndian.Uint16(v.Data[off:])))
		case Uint16:
			out[i] = float64(binary.LittleEndian.Uint16(v.Data[off:]))
		case Int32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(v.Data[off:])))
		case Uint32:
			out[i] = float64(binary.LittleEndian.Uint32(v.Data[off:]))
		case Int64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(v.Data[off:])))
		case Uint64:
			out[i] = float64(binary.LittleEndian.Uint64(v.Data[off:]))
		default:
			return nil, fmt.Errorf("netcdf: unsupported dtype %v", v.DType)
		}
	}
	return out, nil
}

// EncodeFloat64 packs a flat []float64 into raw little-endian bytes of the
// given dtype, the inverse of Float64Values. Used by test fixtures and by
// internal/convert when writing aggregated dimension/bounds variables.
func EncodeFloat64(values []float64, dtype DType) []byte {
	sz := dtype.Size()
	out := make([]byte, len(values)*sz)
	for i, val := range values {
		off := i * sz
		switch dtype {
		case Float32:
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(val)))
		case Float64:
			binary.LittleEndian.PutUint64(out[off:], math.Float64bits(val))
		case Int8, Uint8, Bool:
			out[off] = byte(int64(val))
		case Int16, Uint16:
			binary.LittleEndian.PutUint16(out[off:], uint16(int64(val)))
		case Int32, Uint32:
			binary.LittleEndian.PutUint32(out[off:], uint32(int64(val)))
		case Int64, Uint64:
			binary.LittleEndian.PutUint64(out[off:], uint64(int64(val)))
		}
	}
	return out
}

func elementCount(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
