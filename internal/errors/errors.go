// Package errors provides the structured error type (MigrationError) used to
// classify migration failures by category and severity, decide retryability and
// carry them into the manifest and CLI exit codes.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory classifies where a migration error originated.
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Pipeline stage errors
	CategoryInitialize  ErrorCategory = "initialize"
	CategoryEnumeration ErrorCategory = "enumeration"
	CategoryFilter      ErrorCategory = "filter"
	CategoryMapping     ErrorCategory = "mapping"
	CategoryTransform   ErrorCategory = "transform"
	CategoryPublish     ErrorCategory = "publish"
	CategoryHook        ErrorCategory = "hook"

	// Persistence and integration errors
	CategoryManifest     ErrorCategory = "manifest"
	CategoryStorage      ErrorCategory = "storage"
	CategoryNotification ErrorCategory = "notification"

	// Runtime errors
	CategoryCanceled ErrorCategory = "canceled"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// Rank orders severities; higher is worse. Unknown severities rank as errors.
func (s ErrorSeverity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityFatal:
		return 3
	default:
		return 2
	}
}

// AtLeast reports whether s is as severe as threshold.
func (s ErrorSeverity) AtLeast(threshold ErrorSeverity) bool {
	return s.Rank() >= threshold.Rank()
}

// ParseSeverity normalizes a configured severity; empty string for unknown values.
func ParseSeverity(raw string) ErrorSeverity {
	switch ErrorSeverity(raw) {
	case SeverityFatal, SeverityError, SeverityWarning, SeverityInfo:
		return ErrorSeverity(raw)
	default:
		return ""
	}
}

// MigrationError is a structured error with category, retryability and context.
type MigrationError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for MigrationError
type ContextFields map[string]any

// Error implements the error interface
func (e *MigrationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *MigrationError) WithContext(key string, value any) *MigrationError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new MigrationError
func New(category ErrorCategory, severity ErrorSeverity, message string) *MigrationError {
	return &MigrationError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new MigrationError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *MigrationError {
	return &MigrationError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable MigrationError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *MigrationError {
	return &MigrationError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As finds the first MigrationError in err's chain.
func As(err error) (*MigrationError, bool) {
	var me *MigrationError
	if stdErrors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if me, ok := As(err); ok {
		return me.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable. Errors exposing
// Temporary() bool (e.g. network errors) are honoured as well.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if me, ok := As(err); ok {
		return me.Retryable
	}
	var tempErr interface{ Temporary() bool }
	if stdErrors.As(err, &tempErr) {
		return tempErr.Temporary()
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a MigrationError
func GetCategory(err error) ErrorCategory {
	if me, ok := As(err); ok {
		return me.Category
	}
	return CategoryInternal
}

// SeverityOf extracts the severity from an error; unclassified errors are SeverityError.
func SeverityOf(err error) ErrorSeverity {
	if me, ok := As(err); ok && me.Severity != "" {
		return me.Severity
	}
	return SeverityError
}

// Flatten expands errors produced by errors.Join into their components.
func Flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, Flatten(e)...)
		}
		return out
	}
	return []error{err}
}
