package preprocess

import "errors"

// Sentinel kinds for preprocessing errors.
var (
	ErrPreprocessing = errors.New("preprocessing failed")
)
