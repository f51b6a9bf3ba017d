package ncfile

import "errors"

// Sentinel kinds for dataset errors.
var (
	ErrOpen       = errors.New("cannot open profile file")
	ErrNoVariable = errors.New("variable not declared")
	ErrValueShape = errors.New("unexpected variable shape")
	ErrValueType  = errors.New("unexpected variable type")
)
