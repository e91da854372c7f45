package rechunk

import "fmt"

// FailedError reports that the rechunk plan failed — the RechunkFailed kind
// of spec.md §7. The source store is left untouched by the caller when
// this is returned (spec.md §4.G, "Failure").
type FailedError struct {
	Cause error
}

func (e *FailedError) Error() string { return fmt.Sprintf("rechunk: failed: %v", e.Cause) }

func (e *FailedError) Unwrap() error { return e.Cause }

func failed(cause error) error { return &FailedError{Cause: cause} }
