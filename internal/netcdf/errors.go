package netcdf

import "fmt"

// BadInputDatasetError reports that a dataset could not be opened or parsed
// — the netcdf.BadInputDataset kind of spec.md §7.
type BadInputDatasetError struct {
	Path  string
	Cause error
}

func (e *BadInputDatasetError) Error() string {
	return fmt.Sprintf("netcdf: bad input dataset %s: %v", e.Path, e.Cause)
}

func (e *BadInputDatasetError) Unwrap() error { return e.Cause }

func badInput(path string, cause error) error {
	return &BadInputDatasetError{Path: path, Cause: cause}
}
