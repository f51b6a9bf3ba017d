package explorer

import "errors"

// Sentinel kinds for schema-discovery errors.
var (
	ErrMalformedFile = errors.New("malformed profile file")
)
