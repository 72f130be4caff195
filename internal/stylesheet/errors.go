package stylesheet

import "errors"

var (
	// ErrImportCycle indicates stylesheets that @import each other in a loop.
	ErrImportCycle = errors.New("stylesheet import cycle")

	// ErrMalformedImport indicates an @import rule without a usable target.
	ErrMalformedImport = errors.New("malformed @import")

	// ErrReadFailed indicates an entry or imported stylesheet could not be read.
	ErrReadFailed = errors.New("stylesheet read failed")

	// ErrUnresolvedReference indicates a reference with no manifest entry, or one
	// that points outside the asset root.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrReferenceCycle indicates stylesheets that reference each other through url()
	// or non-inlined @import, so no processing order can satisfy both.
	ErrReferenceCycle = errors.New("stylesheet reference cycle")

	// ErrMinifyFailed indicates the minifier rejected the bundled text.
	ErrMinifyFailed = errors.New("stylesheet minification failed")
)
