package aggregate

import "fmt"

// MixedDimensionTypeError reports that a dimension path is temporal in some
// contributing inputs and non-temporal in others — spec.md §4.C step 3.
type MixedDimensionTypeError struct {
	Path string
}

func (e *MixedDimensionTypeError) Error() string {
	return fmt.Sprintf("aggregate: dimension %s is temporal in some inputs and not others", e.Path)
}
