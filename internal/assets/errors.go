package assets

import "errors"

var (
	// ErrDirectoryNotFound indicates the configured asset root does not exist or is not a directory.
	ErrDirectoryNotFound = errors.New("asset directory not found")

	// ErrWalkFailed indicates filesystem traversal of the asset root failed.
	ErrWalkFailed = errors.New("asset directory walk failed")

	// ErrBadExcludePattern indicates an exclude glob that doublestar cannot parse.
	ErrBadExcludePattern = errors.New("invalid exclude pattern")
)
