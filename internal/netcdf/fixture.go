package netcdf

// NewFixtureDataset wraps an in-memory Group tree (built directly with
// NewGroup/Variable, as tests across this module do) as a Dataset, without
// going through Open's on-disk HDF5 decoding. This is the in-memory
// construction seam SPEC_FULL.md's testable-properties section calls for in
// place of round-tripping fixtures through real HDF5 files.
func NewFixtureDataset(root *Group) *Dataset {
	return &Dataset{path: "<fixture>", Root: root}
}
