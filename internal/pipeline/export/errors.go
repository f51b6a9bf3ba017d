package export

import "errors"

// Sentinel kinds for export errors.
var (
	ErrExport        = errors.New("artifact write failed")
	ErrUnknownFormat = errors.New("unknown table format")
)
