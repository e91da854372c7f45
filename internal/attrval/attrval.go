// Package attrval implements the normalized attribute value representation
// shared by the NetCDF-4/HDF5 reader and the Zarr store writer.
//
// NetCDF-4 attributes are dynamically typed: a scalar integer, a scalar
// float, a UTF-8 string, or a homogeneous numeric array. Zarr attributes are
// JSON. Value is the tagged sum in between, matching the "Dynamic
// attributes" design note in SPEC_FULL.md: every attribute a writer touches
// passes through Value so the JSON shape on disk is uniform regardless of
// which numpy/netCDF dtype produced it.
package attrval

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the variant a Value holds.
type Kind int

const (
	Int64Kind Kind = iota
	Float64Kind
	BoolKind
	StringKind
	Int64ArrayKind
	Float64ArrayKind
	StringArrayKind
)

// Value is a tagged sum over the attribute shapes the converter needs to
// round-trip: {i64, f64, bool, string, array-of-i64, array-of-f64,
// array-of-string}.
type Value struct {
	kind        Kind
	i64         int64
	f64         float64
	b           bool
	s           string
	i64Array    []int64
	f64Array    []float64
	stringArray []string
}

func Int64(v int64) Value                   { return Value{kind: Int64Kind, i64: v} }
func Float64(v float64) Value                { return Value{kind: Float64Kind, f64: v} }
func Bool(v bool) Value                      { return Value{kind: BoolKind, b: v} }
func String(v string) Value                  { return Value{kind: StringKind, s: v} }
func Int64Array(v []int64) Value             { return Value{kind: Int64ArrayKind, i64Array: v} }
func Float64Array(v []float64) Value         { return Value{kind: Float64ArrayKind, f64Array: v} }
func StringArray(v []string) Value           { return Value{kind: StringArrayKind, stringArray: v} }

func (v Value) Kind() Kind { return v.kind }

// Interface returns the value as the Go primitive (or slice of primitives)
// that encoding/json will render the way Zarr's JSON attribute documents
// expect.
func (v Value) Interface() interface{} {
	switch v.kind {
	case Int64Kind:
		return v.i64
	case Float64Kind:
		return v.f64
	case BoolKind:
		return v.b
	case StringKind:
		return v.s
	case Int64ArrayKind:
		return v.i64Array
	case Float64ArrayKind:
		return v.f64Array
	case StringArrayKind:
		return v.stringArray
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// AsFloat64 returns the value as a float64 when the kind permits it.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case Float64Kind:
		return v.f64, true
	case Int64Kind:
		return float64(v.i64), true
	default:
		return 0, false
	}
}

// AsString returns the value as a string when it holds one.
func (v Value) AsString() (string, bool) {
	if v.kind == StringKind {
		return v.s, true
	}
	return "", false
}

// FromGo converts a Go primitive (as produced by the netcdf reader's
// attribute decoding) into a normalized Value. It mirrors
// __netcdf_attr_to_python in the retrieved harmony-netcdf-to-zarr source:
// numpy scalar types collapse to int/float, byte strings decode as UTF-8,
// and homogeneous arrays become arrays of those primitives.
func FromGo(val interface{}) (Value, error) {
	switch t := val.(type) {
	case int64:
		return Int64(t), nil
	case int32:
		return Int64(int64(t)), nil
	case int:
		return Int64(int64(t)), nil
	case float64:
		return Float64(t), nil
	case float32:
		return Float64(float64(t)), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []byte:
		return String(string(t)), nil
	case []int64:
		return Int64Array(t), nil
	case []int32:
		out := make([]int64, len(t))
		for i, x := range t {
			out[i] = int64(x)
		}
		return Int64Array(out), nil
	case []float64:
		return Float64Array(t), nil
	case []float32:
		out := make([]float64, len(t))
		for i, x := range t {
			out[i] = float64(x)
		}
		return Float64Array(out), nil
	case []string:
		return StringArray(t), nil
	default:
		return Value{}, fmt.Errorf("attrval: unsupported attribute value type %T", val)
	}
}

// Map is a convenience alias for the attribute bags passed around while
// copying groups and variables.
type Map map[string]Value

// ToJSONMap converts a Map to a plain map of JSON-ready primitives, for
// direct use building .zattrs documents.
func ToJSONMap(m Map) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}
