// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors
var (
	// Adapter outcomes. They drive the resolver's fallback policy.
	ErrNotFound    = errors.New("instrument not found")
	ErrUnavailable = errors.New("source unavailable")
	ErrBadData     = errors.New("malformed data")

	// Resolution-level failure carrying per-source diagnostics.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")

	// Analysis-level absences. Reported, never fatal.
	ErrInsufficientData     = errors.New("insufficient data for calculation")
	ErrUndefinedCorrelation = errors.New("correlation undefined")

	ErrInvalidPeriod = errors.New("invalid period")
	ErrConfigInvalid = errors.New("invalid configuration")
	ErrStoreClosed   = errors.New("store closed")
)

// AdapterError is a typed failure returned by a quote source.
type AdapterError struct {
	Source     string
	Kind       error // ErrNotFound, ErrUnavailable or ErrBadData
	Instrument string
	Message    string
	Err        error
}

func (e *AdapterError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", e.Source, e.Instrument, e.Kind)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *AdapterError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NotFound reports that source does not cover instrument.
func NotFound(source, instrument, message string) *AdapterError {
	return &AdapterError{Source: source, Kind: ErrNotFound, Instrument: instrument, Message: message}
}

// Unavailable reports a transient failure such as a network error or timeout.
func Unavailable(source, instrument string, err error) *AdapterError {
	return &AdapterError{Source: source, Kind: ErrUnavailable, Instrument: instrument, Err: err}
}

// BadData reports a malformed or invalid response.
func BadData(source, instrument, message string, err error) *AdapterError {
	return &AdapterError{Source: source, Kind: ErrBadData, Instrument: instrument, Message: message, Err: err}
}

// KindOf classifies err into one of the adapter kinds. Errors that carry no
// kind are treated as transient.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrBadData):
		return ErrBadData
	default:
		return ErrUnavailable
	}
}

// ResolutionError is returned when every source failed for an instrument.
type ResolutionError struct {
	Instrument string
	Period     string
	Attempts   []*AdapterError
}

func (e *ResolutionError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, a.Error())
	}
	if len(reasons) == 0 {
		return fmt.Sprintf("resolve %s (%s): %v: no sources configured", e.Instrument, e.Period, ErrAllSourcesExhausted)
	}
	return fmt.Sprintf("resolve %s (%s): %v: %s", e.Instrument, e.Period, ErrAllSourcesExhausted, strings.Join(reasons, "; "))
}

func (e *ResolutionError) Unwrap() error {
	return ErrAllSourcesExhausted
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType   string
	Instrument string
	Message    string
	Err        error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Instrument, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Instrument, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, instrument, message string, err error) *DataError {
	return &DataError{
		DataType:   dataType,
		Instrument: instrument,
		Message:    message,
		Err:        err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
