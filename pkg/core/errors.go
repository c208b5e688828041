// Package core provides the main Assistant client and memory lifecycle
// orchestration.
package core

import (
	"errors"
	"fmt"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/reasoning"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested memory was not found.
	ErrNotFound = storage.ErrNotFound

	// ErrValidation indicates that the caller's input is invalid: a missing
	// entity ID, empty content, or an embedding with the wrong dimension.
	ErrValidation = errors.New("invalid input")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreUnavailable indicates that the vector store could not be
	// reached. Operations fail loudly rather than degrade to empty results.
	ErrStoreUnavailable = storage.ErrUnavailable

	// ErrOwnershipViolation indicates that a memory exists but belongs to a
	// different entity than the caller named.
	ErrOwnershipViolation = storage.ErrOwnership

	// ErrGenerationFailed indicates that evidence was available but answer
	// generation failed. Distinct from the no-evidence outcome, which is a
	// normal response, not an error.
	ErrGenerationFailed = reasoning.ErrGenerationFailed

	// ErrEmbeddingFailed indicates that embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// MemoryError wraps errors with operation context.
//
// It provides additional context about which operation failed, making error
// messages more informative for debugging.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "Ingest",
//	    Err: ErrValidation,
//	}
//	// Error() returns: "memassist: Ingest: invalid input"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "memassist: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("memassist: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("Ingest", err)
//	}
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}
