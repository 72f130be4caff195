package manifest

import "errors"

var (
	// ErrDuplicateKey indicates a logical key registered twice with different published paths.
	ErrDuplicateKey = errors.New("logical key already registered")

	// ErrPublishedCollision indicates two logical keys publishing to the same path.
	ErrPublishedCollision = errors.New("published path already claimed")

	// ErrEmptyKey indicates a registration with an empty key or published path.
	ErrEmptyKey = errors.New("empty manifest entry")
)
