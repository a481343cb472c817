package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by direct lookups of a single event.
	ErrNotFound = errors.New("resource not found")
	// ErrRunInProgress is returned when an import is triggered while another holds the run lock.
	ErrRunInProgress = errors.New("import run already in progress")
	// ErrMalformedRecord marks a record whose structure could not be decoded.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrSourceUnavailable marks a source that could not be reached or opened at all.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// ValidationError names a configuration or taxonomy field that failed a check
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// MultiError collects independent errors, such as every invalid config field
type MultiError struct {
	Errors []error `json:"errors"`
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", e.Errors[0].Error(), len(e.Errors)-1)
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// Add adds an error to the MultiError
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// DatabaseError represents a storage failure. It is the only error class
// that aborts an import run.
type DatabaseError struct {
	Operation string
	Err       error
}

func (e DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

func (e DatabaseError) Unwrap() error {
	return e.Err
}

// PipelineError represents a failure at a source boundary
type PipelineError struct {
	Source string
	Stage  string
	Err    error
}

func (e PipelineError) Error() string {
	return fmt.Sprintf("pipeline error in %s at stage %s: %v", e.Source, e.Stage, e.Err)
}

func (e PipelineError) Unwrap() error {
	return e.Err
}

// RecordError is a failure confined to a single record of a source.
// Ref identifies the record inside its source (manifest entry, feature index).
type RecordError struct {
	Source string
	Ref    string
	Err    error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %s from %s: %v", e.Ref, e.Source, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// IsStorageFailure reports whether err carries a DatabaseError.
func IsStorageFailure(err error) bool {
	var dbErr DatabaseError
	return errors.As(err, &dbErr)
}
