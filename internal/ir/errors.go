package ir

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// WriteError represents a failure of the write path.
//
// Write errors include:
//   - Ordering failure: a scheduler pass made no progress with commands pending
//   - Null constraint: a required relation resolved to null
//   - Role resolution: an entity's role or mapper cannot be determined
//   - Storage failure: a driver rejected a write statement
//
// Storage failures wrap the driver error; use errors.Unwrap or errors.As to
// reach it.
type WriteError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Role identifies the affected role, when known.
	Role string

	// Relation identifies the affected relation, when known.
	Relation string

	// Details contains additional context. Ordering failures list the stuck
	// commands here.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// ErrorCode categorizes write errors.
type ErrorCode string

const (
	// ErrCodeOrdering indicates an unsatisfiable ordering between commands.
	ErrCodeOrdering ErrorCode = "ORDERING_FAILURE"

	// ErrCodeNullConstraint indicates a required relation resolved to null.
	ErrCodeNullConstraint ErrorCode = "NULL_CONSTRAINT"

	// ErrCodeRoleResolution indicates an entity without a known role.
	ErrCodeRoleResolution ErrorCode = "ROLE_RESOLUTION"

	// ErrCodeStorage indicates an opaque failure reported by the driver.
	ErrCodeStorage ErrorCode = "STORAGE_FAILURE"
)

// Error implements the error interface.
func (e *WriteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	switch {
	case e.Role != "" && e.Relation != "":
		fmt.Fprintf(&b, " (role=%s, relation=%s)", e.Role, e.Relation)
	case e.Role != "":
		fmt.Fprintf(&b, " (role=%s)", e.Role)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *WriteError) Unwrap() error {
	return e.Cause
}

// DetailKeys returns detail keys in sorted order.
func (e *WriteError) DetailKeys() []string {
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CodeOf returns the error code of err, or "" if err is not a WriteError.
func CodeOf(err error) ErrorCode {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// IsOrderingFailure returns true if err is an ordering failure.
// Uses errors.As to handle wrapped errors.
func IsOrderingFailure(err error) bool {
	return CodeOf(err) == ErrCodeOrdering
}

// IsNullConstraint returns true if err is a null constraint failure.
func IsNullConstraint(err error) bool {
	return CodeOf(err) == ErrCodeNullConstraint
}

// IsRoleResolution returns true if err is a role resolution failure.
func IsRoleResolution(err error) bool {
	return CodeOf(err) == ErrCodeRoleResolution
}

// IsStorageFailure returns true if err is a storage failure.
func IsStorageFailure(err error) bool {
	return CodeOf(err) == ErrCodeStorage
}

// NewOrderingError creates a WriteError listing the commands that could not
// make progress. stuck maps a command position to its description.
func NewOrderingError(message string, stuck map[string]string) *WriteError {
	return &WriteError{
		Code:    ErrCodeOrdering,
		Message: message,
		Details: stuck,
	}
}

// NewNullConstraintError creates a WriteError for a required relation set to null.
func NewNullConstraintError(role, relation string) *WriteError {
	return &WriteError{
		Code:     ErrCodeNullConstraint,
		Message:  "required relation resolved to null",
		Role:     role,
		Relation: relation,
	}
}

// NewRoleResolutionError creates a WriteError for an entity without a role.
func NewRoleResolutionError(entity any, cause error) *WriteError {
	return &WriteError{
		Code:    ErrCodeRoleResolution,
		Message: fmt.Sprintf("cannot resolve role of %T", entity),
		Cause:   cause,
	}
}

// NewStorageError creates a WriteError wrapping a driver failure.
func NewStorageError(op, table string, cause error) *WriteError {
	return &WriteError{
		Code:    ErrCodeStorage,
		Message: fmt.Sprintf("%s %s failed", op, table),
		Details: map[string]string{
			"op":    op,
			"table": table,
		},
		Cause: cause,
	}
}
