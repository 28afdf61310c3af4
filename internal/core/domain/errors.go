package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrNotConfigured   = errors.New("not configured")
	ErrTemporary       = errors.New("temporary failure")
	ErrSchemaViolation = errors.New("schema violation")
	ErrProviderFailure = errors.New("provider failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type GenerationErrorKind string

const (
	SchemaViolation GenerationErrorKind = "schema_violation"
	ProviderFailure GenerationErrorKind = "provider_failure"
)

// GenerationError is returned by the estimate generator. Raw holds the model
// output that failed validation; it is empty for provider failures.
type GenerationError struct {
	Kind GenerationErrorKind
	Raw  string
	Err  error
}

func (e *GenerationError) Error() string {
	if e == nil {
		return "generation error"
	}
	if e.Kind == SchemaViolation {
		return fmt.Sprintf("estimate generation: %s: %v; raw response: %s", e.Kind, e.Err, e.Raw)
	}
	return fmt.Sprintf("estimate generation: %s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	kind := ErrProviderFailure
	if e.Kind == SchemaViolation {
		kind = ErrSchemaViolation
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}

func NewSchemaViolation(raw string, err error) *GenerationError {
	return &GenerationError{Kind: SchemaViolation, Raw: raw, Err: err}
}

func NewProviderFailure(err error) *GenerationError {
	return &GenerationError{Kind: ProviderFailure, Err: err}
}

// AsGenerationError extracts a GenerationError from an error chain.
func AsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}
