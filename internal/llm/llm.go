// Package llm abstracts the generative-text capability behind a single
// interface so the pipeline and the aggregator stay testable with a
// deterministic stub.
package llm

import (
	"context"
	"errors"
)

// Result is one completed generation: the text plus the provider's
// reported token usage.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TextClient is the generative-text capability: system instruction and
// user prompt in, text and usage out. Implementations own their retry
// policy; callers treat failures as opaque.
type TextClient interface {
	Name() string
	Generate(ctx context.Context, system, prompt string, maxOutputTokens int) (Result, error)
	Close() error
}

// ErrEmptyCompletion is returned when the provider answers without any
// usable text.
var ErrEmptyCompletion = errors.New("llm: empty completion from model")

// PermanentError marks a failure that will not resolve with retries,
// e.g. a content-filtered response.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is wrapped as non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
