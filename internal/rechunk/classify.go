package rechunk

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/harmony-services/netcdf-to-zarr/internal/store"
)

// kind classifies an array for spec.md §4.G step 2's rechunk-target rule.
type kind int

const (
	kindData kind = iota
	kindCoordinateOrBounds
)

// classify reports whether path is a coordinate (a self-describing
// dimension variable: its `_ARRAY_DIMENSIONS` attribute is exactly its own
// name) or a bounds variable (name suffix `_bnds`/`_bounds`) — both of
// which keep their existing chunking — versus a data variable, which is
// rechunked via the planner (spec.md §4.G step 2).
func classify(ctx context.Context, src *store.Store, path string) (kind, error) {
	name := basename(path)
	if strings.HasSuffix(name, "_bnds") || strings.HasSuffix(name, "_bounds") {
		return kindCoordinateOrBounds, nil
	}

	attrs, err := src.ReadAttrs(ctx, path)
	if err != nil {
		return kindData, err
	}
	raw, ok := attrs["_ARRAY_DIMENSIONS"]
	if !ok {
		return kindData, nil
	}
	var dims []string
	if err := json.Unmarshal(raw, &dims); err != nil {
		return kindData, err
	}
	if len(dims) == 1 && dims[0] == name {
		return kindCoordinateOrBounds, nil
	}
	return kindData, nil
}

func basename(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
