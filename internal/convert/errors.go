package convert

import (
	"errors"
	"fmt"
)

// Sentinel errors matching the taxonomy of spec.md §7, each wrapped with
// %w by the concrete *ConvertError returned from Convert so collaborators
// can test kind with errors.Is/errors.As regardless of the message text.
var (
	ErrInvalidChunkSpec   = errors.New("invalid chunk spec")
	ErrMixedDimensionType = errors.New("mixed dimension type")
	ErrWorkerException    = errors.New("worker exception")
	ErrWorkerCrash        = errors.New("worker crash")
	ErrRechunkFailed      = errors.New("rechunk failed")
	ErrBadInputDataset    = errors.New("bad input dataset")
)

// ExceptionType names which sentinel a *ConvertError wraps, the Go
// rendering of exceptions.py's CustomError.exception_type in the retrieved
// original harmony-netcdf-to-zarr source.
type ExceptionType string

const (
	InvalidChunkSpec   ExceptionType = "InvalidChunkSpec"
	MixedDimensionType ExceptionType = "MixedDimensionType"
	WorkerException    ExceptionType = "WorkerException"
	WorkerCrash        ExceptionType = "WorkerCrash"
	RechunkFailed      ExceptionType = "RechunkFailed"
	BadInputDataset    ExceptionType = "BadInputDataset"
)

// ConvertError is the single error envelope Convert returns, carrying one
// human-readable Message plus the ExceptionType a collaborator can branch
// on — spec.md §6's "Errors surfaced to the collaborator ... each carries a
// single human-readable message; the adapter is expected to wrap them into
// its own envelope."
type ConvertError struct {
	ExceptionType ExceptionType
	Message       string
	sentinel      error
	cause         error
}

func (e *ConvertError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("convert: %s: %s: %v", e.ExceptionType, e.Message, e.cause)
	}
	return fmt.Sprintf("convert: %s: %s", e.ExceptionType, e.Message)
}

func (e *ConvertError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.sentinel, e.cause}
	}
	return []error{e.sentinel}
}

func newConvertError(t ExceptionType, sentinel error, message string, cause error) *ConvertError {
	return &ConvertError{ExceptionType: t, Message: message, sentinel: sentinel, cause: cause}
}
