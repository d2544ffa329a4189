package errors

import "context"

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *MigrationError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *MigrationError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Run-level errors

func InitializationFailed(cause error) *MigrationError {
	return Wrap(cause, CategoryInitialize, SeverityFatal, "migration initialization failed")
}

func UnsupportedManifestVersion(found, supported string) *MigrationError {
	return New(CategoryManifest, SeverityFatal, "unsupported manifest version").
		WithContext("found", found).
		WithContext("supported", supported)
}

// Action-level errors

func EnumerationFailed(contentType string, cause error) *MigrationError {
	return Wrap(cause, CategoryEnumeration, SeverityFatal, "listing source items failed").
		WithContext("content_type", contentType)
}

func FilterFailed(contentType string, cause error) *MigrationError {
	return Wrap(cause, CategoryFilter, SeverityFatal, "filtering items failed").
		WithContext("content_type", contentType)
}

// Item-level errors

func MappingFailed(sourceID string, cause error) *MigrationError {
	return Wrap(cause, CategoryMapping, SeverityError, "mapping item failed").
		WithContext("source_id", sourceID)
}

func TransformFailed(sourceID string, cause error) *MigrationError {
	return Wrap(cause, CategoryTransform, SeverityError, "transforming item failed").
		WithContext("source_id", sourceID)
}

func PublishFailed(sourceID string, cause error) *MigrationError {
	return Wrap(cause, CategoryPublish, SeverityError, "publishing item failed").
		WithContext("source_id", sourceID)
}

// PublishRejected reports a non-success publish result without a Go error.
func PublishRejected(sourceID, reason string) *MigrationError {
	return New(CategoryPublish, SeverityError, reason).
		WithContext("source_id", sourceID)
}

// Hook-level errors

func HookFailed(point string, index int, cause error) *MigrationError {
	return Wrap(cause, CategoryHook, SeverityError, "hook failed").
		WithContext("point", point).
		WithContext("hook", index)
}

func HookPanicked(point string, index int, recovered any) *MigrationError {
	return New(CategoryHook, SeverityError, "hook panicked").
		WithContext("point", point).
		WithContext("hook", index).
		WithContext("panic", recovered)
}

// Runtime errors

func Canceled(cause error) *MigrationError {
	if cause == nil {
		cause = context.Canceled
	}
	return Wrap(cause, CategoryCanceled, SeverityWarning, "operation canceled")
}

func StoreFailed(operation string, cause error) *MigrationError {
	return Wrap(cause, CategoryStorage, SeverityFatal, "manifest store operation failed").
		WithContext("operation", operation)
}

func InternalError(message string, cause error) *MigrationError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
