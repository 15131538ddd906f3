// Package errors provides error types and handling for chunked upload operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a failed upload operation with context about the file and
// chunk involved.
type Error struct {
	// Op is the operation that failed (e.g., "upload", "test", "read")
	Op string

	// File is the identifier of the file (if applicable)
	File string

	// Chunk is the 1-based chunk number (0 when not chunk specific)
	Chunk int

	// StatusCode is the last response status (0 when no response was received)
	StatusCode int

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	var target string
	switch {
	case e.File != "" && e.Chunk > 0:
		target = fmt.Sprintf(" %s#%d", e.File, e.Chunk)
	case e.File != "":
		target = " " + e.File
	case e.Chunk > 0:
		target = fmt.Sprintf(" chunk %d", e.Chunk)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload.%s%s: status %d: %v", e.Op, target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload.%s%s: %v", e.Op, target, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithFile adds file identifier context to an existing error.
func (e *Error) WithFile(identifier string) *Error {
	e.File = identifier
	return e
}

// WithChunk adds chunk number context to an existing error.
func (e *Error) WithChunk(number int) *Error {
	e.Chunk = number
	return e
}

// WithStatus records the response status code that caused the error.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// Code returns the classification of the underlying error.
func (e *Error) Code() ErrorCode {
	return CodeOf(e.Err)
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewChunkError creates a new Error with file and chunk context.
func NewChunkError(op, identifier string, chunk int, err error) *Error {
	return &Error{
		Op:    op,
		File:  identifier,
		Chunk: chunk,
		Err:   err,
	}
}

// Sentinel errors for upload failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("upload: invalid input")

	// ErrPermanent indicates the server returned a status listed as permanent
	ErrPermanent = errors.New("upload: permanent error status")

	// ErrRetriesExhausted indicates the chunk retry budget was used up
	ErrRetriesExhausted = errors.New("upload: retries exhausted")

	// ErrRejected indicates the response processor rejected the response
	ErrRejected = errors.New("upload: response rejected")

	// ErrReadFailed indicates the chunk bytes could not be read
	ErrReadFailed = errors.New("upload: read failed")

	// ErrPreprocessFailed indicates the preprocess hook returned an error
	ErrPreprocessFailed = errors.New("upload: preprocess failed")

	// ErrDuplicateFile indicates a file with the same identifier was already added
	ErrDuplicateFile = errors.New("upload: duplicate file")

	// ErrFileNotFound indicates the file is not tracked by the uploader
	ErrFileNotFound = errors.New("upload: file not found")

	// ErrClosed indicates the uploader has been closed
	ErrClosed = errors.New("upload: uploader closed")
)

// IsPermanent checks if an error was caused by a permanent error status.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsRetriesExhausted checks if an error was caused by an exhausted retry budget.
func IsRetriesExhausted(err error) bool {
	return errors.Is(err, ErrRetriesExhausted)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsClosed checks if an error indicates the uploader was closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
