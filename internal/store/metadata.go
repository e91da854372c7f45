package store

import (
	"encoding/json"
	"fmt"
)

// CompressorConfig is the numcodecs-style compressor descriptor embedded in
// a .zarray document. This store always writes zstd, matching
// klauspost/compress/zstd already used for batched reads in the retrieved
// TuSKan-go-zarr teacher.
type CompressorConfig struct {
	ID     string `json:"id"`
	Level  int    `json:"level,omitempty"`
	Shuffle int   `json:"shuffle,omitempty"`
}

var zstdCompressor = &CompressorConfig{ID: "zstd"}

// ZArray is the Zarr v2 ".zarray" metadata document for one array.
type ZArray struct {
	ZarrFormat int               `json:"zarr_format"`
	Shape      []int             `json:"shape"`
	Chunks     []int             `json:"chunks"`
	DType      string            `json:"dtype"`
	Compressor *CompressorConfig `json:"compressor"`
	FillValue  interface{}       `json:"fill_value"`
	Order      string            `json:"order"`
	Filters    []interface{}     `json:"filters"`
}

// ZGroup is the Zarr v2 ".zgroup" metadata document.
type ZGroup struct {
	ZarrFormat int `json:"zarr_format"`
}

// consolidatedDoc is the document written to ".zmetadata" by
// ConsolidateMetadata, matching the zarr-python "consolidate_metadata"
// convention: a single round trip for every .zgroup/.zarray/.zattrs key.
type consolidatedDoc struct {
	ZarrConsolidatedFormat int                        `json:"zarr_consolidated_format"`
	Metadata               map[string]json.RawMessage `json:"metadata"`
}

// ParseDType takes a numpy-style dtype string ("<f4", "|b1", "<i8") and
// returns its element byte size. Grounded on TuSKan-go-zarr's
// zarr.ParseDType, trimmed to what internal/rechunk needs to size read
// buffers: this store only ever writes the little-endian/no-endianness
// dtypes internal/netcdf.DType.ZarrDType produces. Big-endian dtypes are
// rejected; any other dtype of kind b/i/u/f/c is sized from its digits.
func ParseDType(s string) (size int, err error) {
	if len(s) < 3 {
		return 0, fmt.Errorf("store: invalid dtype %q", s)
	}
	if s[0] == '>' {
		return 0, fmt.Errorf("store: big-endian dtype %q is unsupported", s)
	}
	kind := s[1]
	var n int
	if _, err := fmt.Sscanf(s[2:], "%d", &n); err != nil {
		return 0, fmt.Errorf("store: invalid dtype %q: %w", s, err)
	}
	switch kind {
	case 'b', 'i', 'u', 'f', 'c':
		return n, nil
	default:
		return 0, fmt.Errorf("store: unsupported dtype kind %q in %q", string(kind), s)
	}
}
