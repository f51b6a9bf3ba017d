package ncfile

import (
	"fmt"
	"sort"
)

// MemDataset is an in-memory Dataset used by tests and fixtures.
type MemDataset struct {
	FilePath string
	Dims     []Dimension

	vectors  map[string][]float64
	matrices map[string][][]float64
	chars    map[string][]string
	attrs    map[string]map[string]string

	closed bool
}

// NewMem creates an empty in-memory dataset.
func NewMem(path string) *MemDataset {
	return &MemDataset{
		FilePath: path,
		vectors:  make(map[string][]float64),
		matrices: make(map[string][][]float64),
		chars:    make(map[string][]string),
		attrs:    make(map[string]map[string]string),
	}
}

// AddDimension declares a dimension.
func (m *MemDataset) AddDimension(name string, length int) *MemDataset {
	m.Dims = append(m.Dims, Dimension{Name: name, Length: length})
	return m
}

// AddVector declares a per-profile numeric variable.
func (m *MemDataset) AddVector(name string, values []float64) *MemDataset {
	m.vectors[name] = values
	return m
}

// AddMatrix declares a per-level numeric variable, one row per profile.
func (m *MemDataset) AddMatrix(name string, rows [][]float64) *MemDataset {
	m.matrices[name] = rows
	return m
}

// AddChars declares a character variable, one string per profile.
func (m *MemDataset) AddChars(name string, values []string) *MemDataset {
	m.chars[name] = values
	return m
}

// SetAttr sets a variable attribute; pass "" for a global attribute.
func (m *MemDataset) SetAttr(variable, name, value string) *MemDataset {
	if m.attrs[variable] == nil {
		m.attrs[variable] = make(map[string]string)
	}
	m.attrs[variable][name] = value
	return m
}

// Path returns the fixture path.
func (m *MemDataset) Path() string { return m.FilePath }

// Dimensions returns the declared dimensions.
func (m *MemDataset) Dimensions() []Dimension { return m.Dims }

// Variables returns all declared variable names, sorted.
func (m *MemDataset) Variables() []string {
	names := make([]string, 0, len(m.vectors)+len(m.matrices)+len(m.chars))
	for name := range m.vectors {
		names = append(names, name)
	}
	for name := range m.matrices {
		names = append(names, name)
	}
	for name := range m.chars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the variable is declared.
func (m *MemDataset) Has(name string) bool {
	_, v := m.vectors[name]
	_, x := m.matrices[name]
	_, c := m.chars[name]
	return v || x || c
}

// FloatVector returns a per-profile numeric variable.
func (m *MemDataset) FloatVector(name string) ([]float64, error) {
	if v, ok := m.vectors[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoVariable, name)
}

// FloatMatrix returns a per-level numeric variable.
func (m *MemDataset) FloatMatrix(name string) ([][]float64, error) {
	if v, ok := m.matrices[name]; ok {
		return v, nil
	}
	if v, ok := m.vectors[name]; ok {
		return [][]float64{v}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoVariable, name)
}

// Chars returns a character variable.
func (m *MemDataset) Chars(name string) ([]string, error) {
	if v, ok := m.chars[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoVariable, name)
}

// Attr returns a variable or global attribute.
func (m *MemDataset) Attr(variable, name string) (string, bool) {
	if vals, ok := m.attrs[variable]; ok {
		v, has := vals[name]
		return v, has
	}
	return "", false
}

// Close marks the dataset closed.
func (m *MemDataset) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called. Test helper.
func (m *MemDataset) Closed() bool { return m.closed }
