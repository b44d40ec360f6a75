// Package errors holds the sentinel errors shared across the evaluator.
//
// Callers wrap them with fmt.Errorf("...: %w", ErrX) and test with
// errors.Is. Per-document errors (ErrMissingField, ErrMalformedAnnotation)
// are the only ones a run may skip; everything else fails the run.
package errors

import "errors"

// Annotation errors raised while extracting labels from documents.
var (
	// ErrMissingField indicates a required annotation field is absent.
	ErrMissingField = errors.New("missing annotation field")

	// ErrMalformedAnnotation indicates an annotation field could not be decoded.
	ErrMalformedAnnotation = errors.New("malformed annotation")
)

// Evaluation run errors.
var (
	// ErrInsufficientData indicates fewer than two classes were observed.
	ErrInsufficientData = errors.New("insufficient data for evaluation")

	// ErrFactNotFound indicates a fact name or value is absent from the corpus.
	ErrFactNotFound = errors.New("fact not found in corpus")

	// ErrRunCanceled indicates the job tracker marked the run as canceled.
	ErrRunCanceled = errors.New("evaluation run canceled")

	// ErrUnknownEvaluationType indicates no strategy is registered for the requested type.
	ErrUnknownEvaluationType = errors.New("unknown evaluation type")
)

// Resource errors.
var (
	// ErrMemoryEstimation indicates available system memory could not be queried.
	ErrMemoryEstimation = errors.New("memory estimation failed")
)

// Client and lookup errors.
var (
	// ErrClientDisabled indicates a client or feature is disabled.
	ErrClientDisabled = errors.New("client disabled")

	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
