// Package fault defines the error taxonomy shared by the chat pipeline.
//
//   - ProviderError: the LLM, embedding or vector-search collaborator failed.
//     Always recovered locally (empty knowledge context or a canned apology).
//   - StorageError: session or history persistence failed. The voice flow
//     degrades to a memory-less turn.
//   - ValidationError: the caller sent an unusable request. The only class
//     surfaced verbatim (HTTP 400).
//
// Rate limiting and safety refusals are normal outcomes, not errors.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ProviderError reports a failed call to an external collaborator.
type ProviderError struct {
	// Provider names the upstream service, e.g. "groq", "cohere", "supabase".
	Provider string
	// Op is the attempted operation, e.g. "complete", "embed", "search".
	Op string
	// StatusCode is the HTTP status returned by the provider, or 0 when the
	// request never produced a response.
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the call may succeed: throttling,
// server-side failures, timeouts and network errors.
func (e *ProviderError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr)
}

// Provider wraps err as a ProviderError. A nil err yields nil.
func Provider(provider, op string, status int, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Op: op, StatusCode: status, Err: err}
}

// StorageError reports a failed persistence operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError. A nil err yields nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Invalid builds a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsProvider reports whether err wraps a ProviderError.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsStorage reports whether err wraps a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	_, ok := AsValidation(err)
	return ok
}

// AsValidation returns the ValidationError wrapped by err, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
