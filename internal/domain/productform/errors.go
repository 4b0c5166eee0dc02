package productform

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for form operations.
var (
	ErrUnknownField         = errors.New("unknown field")
	ErrImageIndexOutOfRange = errors.New("image index out of range")
	ErrSubmitInProgress     = errors.New("submission already in progress")
	ErrClosed               = errors.New("form is closed")
	ErrDraftNotFound        = errors.New("draft not found")
)

// FieldValidationError reports a single invalid field.
type FieldValidationError struct {
	Field  Field
	Reason string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ImageCountError reports that the draft holds, or would hold, a number of
// images outside [Min, Max].
type ImageCountError struct {
	Min    int
	Max    int
	Actual int
}

func (e *ImageCountError) Error() string {
	return fmt.Sprintf("between %d and %d images are required, got %d", e.Min, e.Max, e.Actual)
}

// RejectReason says why a selected file was not accepted.
type RejectReason string

const (
	RejectType RejectReason = "type"
	RejectSize RejectReason = "size"
)

// ImageRejectedError reports a selected file that failed the media type or
// size check. Other files of the same selection are unaffected.
type ImageRejectedError struct {
	File        string
	ContentType string
	Size        int64
	Reason      RejectReason
}

func (e *ImageRejectedError) Error() string {
	switch e.Reason {
	case RejectSize:
		return fmt.Sprintf("%s exceeds the 5MB limit (%d bytes)", e.File, e.Size)
	default:
		return fmt.Sprintf("%s is not an image (%s)", e.File, e.ContentType)
	}
}

// SubmissionError wraps a failure reported by the submission function.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string {
	return "submit product: " + e.Cause.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// ValidationError aggregates every problem found by a full-draft check.
type ValidationError struct {
	Fields []*FieldValidationError
	Images *ImageCountError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields)+1)
	if e.Images != nil {
		parts = append(parts, e.Images.Error())
	}
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "invalid draft: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Fields)+1)
	if e.Images != nil {
		errs = append(errs, e.Images)
	}
	for _, f := range e.Fields {
		errs = append(errs, f)
	}
	return errs
}
