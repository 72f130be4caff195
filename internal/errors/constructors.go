package errors

// Convenience functions for the build error taxonomy.

// Config errors

func ConfigNotFound(path string) *AssetError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigInvalid(field, reason string) *AssetError {
	return New(CategoryValidation, SeverityFatal, "invalid configuration").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Build pipeline errors

// DirectoryNotFound reports a configured root that does not exist. It aborts
// the build before any processing happens.
func DirectoryNotFound(role, path string, cause error) *AssetError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "directory not found").
		WithContext("role", role).
		WithContext("path", path)
}

// IOError reports a read or write failure on an individual file.
func IOError(operation, path string, cause error) *AssetError {
	return Wrap(cause, CategoryFileSystem, SeverityError, "file operation failed").
		WithContext("operation", operation).
		WithContext("path", path)
}

// UnresolvedReference reports a stylesheet reference with no manifest entry.
func UnresolvedReference(stylesheet string, cause error) *AssetError {
	return Wrap(cause, CategoryStylesheet, SeverityError, "unresolved stylesheet reference").
		WithContext("stylesheet", stylesheet)
}

// StylesheetFailed reports a stylesheet that could not be bundled.
func StylesheetFailed(stylesheet string, cause error) *AssetError {
	return Wrap(cause, CategoryStylesheet, SeverityError, "stylesheet processing failed").
		WithContext("stylesheet", stylesheet)
}

// ManifestConflict reports two assets competing for one manifest entry.
func ManifestConflict(key string, cause error) *AssetError {
	return Wrap(cause, CategoryManifest, SeverityFatal, "manifest conflict").
		WithContext("key", key)
}

// SerializationError reports a manifest (or report) that could not be written.
// Always fatal: a missing manifest silently degrades every release lookup.
func SerializationError(path string, cause error) *AssetError {
	return Wrap(cause, CategoryManifest, SeverityFatal, "manifest serialization failed").
		WithContext("path", path)
}

// BuildFailed wraps the aggregated failures of a build stage.
func BuildFailed(stage string, cause error) *AssetError {
	return Wrap(cause, CategoryBuild, SeverityFatal, "build failed").
		WithContext("stage", stage)
}

// Internal errors

func InternalError(message string, cause error) *AssetError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
