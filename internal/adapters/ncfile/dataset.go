// Package ncfile adapts NetCDF profile files behind a small Dataset
// interface, so pipeline stages never touch the underlying reader API
// and tests can substitute in-memory datasets.
package ncfile

// Dimension is one declared dimension.
type Dimension struct {
	Name   string
	Length int
}

// Dataset is the read surface the pipeline stages consume.
//
// Two value accessors cover the shapes ARGO files use:
//   - FloatVector for per-profile numeric variables (LATITUDE, JULD,
//     CYCLE_NUMBER); a scalar comes back as a one-element vector.
//   - FloatMatrix for per-level numeric variables (PRES, TEMP, ...); one row
//     per profile, and a one-dimensional variable is promoted to a single row.
//
// Chars returns one string per profile for character variables: DATA_MODE
// (one char each), PLATFORM_NUMBER (fixed-width each), and QC arrays (one
// char per level each).
type Dataset interface {
	Path() string
	Dimensions() []Dimension
	Variables() []string
	Has(name string) bool
	FloatVector(name string) ([]float64, error)
	FloatMatrix(name string) ([][]float64, error)
	Chars(name string) ([]string, error)
	// Attr reads an attribute of the named variable; pass "" for a global
	// attribute. Values are rendered as strings.
	Attr(variable, name string) (string, bool)
	Close() error
}

// Opener opens a dataset from a path. The orchestrator takes one of these so
// tests can inject fixtures.
type Opener func(path string) (Dataset, error)
