package reconcile

import (
	"errors"
	"fmt"

	"github.com/roach88/fusionsync/internal/domain"
)

// SyncError is returned by SyncDesign when the payload violates a structural
// rule or the store rejects a write. The whole call has been rolled back
// when a SyncError is returned.
type SyncError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Identifier is the external id (or entity kind for missing ids) that
	// caused the failure.
	Identifier string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes sync errors.
type ErrorCode string

const (
	// CodeMissingIdentifier indicates a required uuid or email is absent.
	CodeMissingIdentifier ErrorCode = "MISSING_IDENTIFIER"

	// CodeInvalidVersionNumber indicates a version number that is not a
	// positive integer.
	CodeInvalidVersionNumber ErrorCode = "INVALID_VERSION_NUMBER"

	// CodeDuplicateVersionNumber indicates two revisions claim the same
	// (parent, number) pair.
	CodeDuplicateVersionNumber ErrorCode = "DUPLICATE_VERSION_NUMBER"

	// CodeInvalidQuantity indicates an assembly line quantity below 1.
	CodeInvalidQuantity ErrorCode = "INVALID_QUANTITY"

	// CodeSelfReference indicates an assembly line whose child is its parent.
	CodeSelfReference ErrorCode = "SELF_REFERENCE"

	// CodeRecursiveReference indicates an assembly line that would close a
	// cycle in the assembly graph.
	CodeRecursiveReference ErrorCode = "RECURSIVE_REFERENCE"

	// CodeGraphTooLarge indicates the cycle check for an assembly line
	// visited more nodes than the engine allows. No cycle was found.
	CodeGraphTooLarge ErrorCode = "GRAPH_TOO_LARGE"

	// CodeChildNotFound indicates an assembly line referencing a child
	// revision that is not synced.
	CodeChildNotFound ErrorCode = "CHILD_NOT_FOUND"

	// CodeReferenceNotFound indicates an external design revision reference
	// that is not synced.
	CodeReferenceNotFound ErrorCode = "REFERENCE_NOT_FOUND"

	// CodeMalformedPayload indicates the payload could not be decoded.
	CodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"

	// CodeConflict indicates a write lost a race against a concurrent sync.
	// Retrying the same payload is safe.
	CodeConflict ErrorCode = "CONFLICT"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.Identifier)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether the code describes a payload the caller must
// fix, as opposed to a transient store condition.
func (c ErrorCode) IsValidation() bool {
	switch c {
	case CodeMalformedPayload, CodeConflict, "":
		return false
	default:
		return true
	}
}

// CodeOf returns the code of the first SyncError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	return code != "" && CodeOf(err) == code
}

// IsRetryable reports whether resubmitting the same payload may succeed.
func IsRetryable(err error) bool {
	return IsCode(err, CodeConflict)
}

func errMissingIdentifier(kind, field string) *SyncError {
	return &SyncError{
		Code:       CodeMissingIdentifier,
		Message:    fmt.Sprintf("%s is missing required field %q", kind, field),
		Identifier: kind,
	}
}

func errInvalidVersionNumber(id string, err error) *SyncError {
	return &SyncError{
		Code:       CodeInvalidVersionNumber,
		Message:    err.Error(),
		Identifier: id,
		Err:        err,
	}
}

func errDuplicateVersionNumber(id string, number int, detail string) *SyncError {
	return &SyncError{
		Code:       CodeDuplicateVersionNumber,
		Message:    fmt.Sprintf("version %d %s", number, detail),
		Identifier: id,
	}
}

func errInvalidQuantity(parent string, quantity int) *SyncError {
	return &SyncError{
		Code:       CodeInvalidQuantity,
		Message:    fmt.Sprintf("assembly quantity must be at least 1, got %d", quantity),
		Identifier: parent,
	}
}

func errSelfReference(id string) *SyncError {
	return &SyncError{
		Code:       CodeSelfReference,
		Message:    "component revision cannot contain itself",
		Identifier: id,
	}
}

func errRecursiveReference(parent, child string) *SyncError {
	return &SyncError{
		Code:       CodeRecursiveReference,
		Message:    fmt.Sprintf("adding %s under %s would create a cycle", child, parent),
		Identifier: parent,
	}
}

func errGraphTooLarge(parent, child string, err error) *SyncError {
	return &SyncError{
		Code:       CodeGraphTooLarge,
		Message:    fmt.Sprintf("cannot check %s under %s for cycles: %v", child, parent, err),
		Identifier: parent,
		Err:        err,
	}
}

func errChildNotFound(id, detail string) *SyncError {
	return &SyncError{
		Code:       CodeChildNotFound,
		Message:    "child component revision is not synced: " + detail,
		Identifier: id,
	}
}

func errReferenceNotFound(id string) *SyncError {
	return &SyncError{
		Code:       CodeReferenceNotFound,
		Message:    "external design revision is not synced",
		Identifier: id,
	}
}

// storeError classifies an error returned by the store. Unique-constraint
// races become a retryable CONFLICT; anything else is passed through wrapped
// with op.
func storeError(op string, err error) error {
	var se *SyncError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, domain.ErrConflict) {
		return &SyncError{
			Code:    CodeConflict,
			Message: op + ": concurrent sync wrote the same record, retry",
			Err:     err,
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
