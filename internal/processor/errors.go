package processor

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"strings"

	"go.uber.org/multierr"

	"tinyimg/internal/lossless"
	"tinyimg/internal/lossy"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrValidation indicates a bad request: out-of-range options, missing
	// inputs, mismatched outputs. Nothing has been written.
	ErrValidation = errors.New("validation failed")

	// ErrIO indicates an unreadable source or unwritable destination.
	ErrIO = errors.New("i/o error")

	// ErrTimeout indicates the recompression stage exceeded its bound.
	ErrTimeout = errors.New("timed out")

	// ErrQuantization indicates the quantizer or the lossless optimizer
	// failed internally.
	ErrQuantization = errors.New("optimization failed")
)

// TaskError wraps a per-task failure with its classification and the stage
// it happened in.
type TaskError struct {
	// Kind is the sentinel error for classification (e.g., ErrIO).
	Kind  error
	Stage Stage
	Path  string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Stage, e.Path, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func newTaskError(kind error, stage Stage, path string, err error) *TaskError {
	if kind == nil {
		kind = Classify(err)
	}
	return &TaskError{Kind: kind, Stage: stage, Path: path, Err: err}
}

// Classify maps an error from a collaborator to one of the sentinel kinds.
// It returns nil for a nil error.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var formatErr png.FormatError
	var unsupportedErr png.UnsupportedError
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, lossless.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, lossy.ErrEmptyImage):
		return ErrQuantization
	case errors.Is(err, lossless.ErrMalformed),
		errors.As(err, &pathErr),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission),
		errors.As(err, &formatErr),
		errors.As(err, &unsupportedErr):
		return ErrIO
	default:
		return ErrQuantization
	}
}

// ValidationError lists every problem found while checking a request.
type ValidationError struct {
	// Err combines the individual problems; see Problems.
	Err error
}

func (e *ValidationError) Error() string {
	problems := e.Problems()
	if len(problems) == 1 {
		return "invalid request: " + problems[0].Error()
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("invalid request (%d problems): %s", len(problems), strings.Join(msgs, "; "))
}

// Problems returns the individual validation failures in discovery order.
func (e *ValidationError) Problems() []error {
	return multierr.Errors(e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
