package ncfile

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// File is the production Dataset backed by go-native-netcdf.
type File struct {
	path  string
	group api.Group
}

// Open opens a NetCDF profile file for reading.
func Open(path string) (Dataset, error) {
	group, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	return &File{path: path, group: group}, nil
}

// Path returns the source file path.
func (f *File) Path() string { return f.path }

// Dimensions enumerates the declared dimensions in name order.
func (f *File) Dimensions() []Dimension {
	names := f.group.ListDimensions()
	sort.Strings(names)
	dims := make([]Dimension, 0, len(names))
	for _, name := range names {
		length, has := f.group.GetDimension(name)
		if !has {
			continue
		}
		dims = append(dims, Dimension{Name: name, Length: int(length)})
	}
	return dims
}

// Variables enumerates declared variable names.
func (f *File) Variables() []string {
	return f.group.ListVariables()
}

// Has reports whether the variable is declared.
func (f *File) Has(name string) bool {
	for _, v := range f.group.ListVariables() {
		if v == name {
			return true
		}
	}
	return false
}

// FloatVector reads a per-profile numeric variable.
func (f *File) FloatVector(name string) ([]float64, error) {
	vr, err := f.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoVariable, name)
	}
	return toFloatVector(name, vr.Values)
}

// FloatMatrix reads a per-level numeric variable as one row per profile.
func (f *File) FloatMatrix(name string) ([][]float64, error) {
	vr, err := f.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoVariable, name)
	}
	return toFloatMatrix(name, vr.Values)
}

// Chars reads a character variable as one string per profile.
func (f *File) Chars(name string) ([]string, error) {
	vr, err := f.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoVariable, name)
	}
	switch v := vr.Values.(type) {
	case string:
		// A 1-D char variable collapses to one string with one char per
		// profile (DATA_MODE, DIRECTION).
		out := make([]string, 0, len(v))
		for i := 0; i < len(v); i++ {
			out = append(out, v[i:i+1])
		}
		return out, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %s holds %T", ErrValueType, name, vr.Values)
	}
}

// Attr reads a variable or global attribute rendered as a string.
func (f *File) Attr(variable, name string) (string, bool) {
	var attrs api.AttributeMap
	if variable == "" {
		attrs = f.group.Attributes()
	} else {
		vr, err := f.group.GetVariable(variable)
		if err != nil {
			return "", false
		}
		attrs = vr.Attributes
	}
	if attrs == nil {
		return "", false
	}
	val, has := attrs.Get(name)
	if !has {
		return "", false
	}
	return renderAttr(val), true
}

// Close releases the underlying reader.
func (f *File) Close() error {
	f.group.Close()
	return nil
}

func renderAttr(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// toFloatVector converts any numeric slice (or scalar) into []float64.
func toFloatVector(name string, values interface{}) ([]float64, error) {
	rv := reflect.ValueOf(values)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]float64, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			f, err := toFloat(rv.Index(i))
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %v", ErrValueType, name, i, err)
			}
			out[i] = f
		}
		return out, nil
	default:
		f, err := toFloat(rv)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrValueType, name, err)
		}
		return []float64{f}, nil
	}
}

// toFloatMatrix converts a 2-D numeric value into per-profile rows,
// promoting a 1-D value to a single row.
func toFloatMatrix(name string, values interface{}) ([][]float64, error) {
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: %s holds %T", ErrValueShape, name, values)
	}
	if rv.Len() == 0 {
		return [][]float64{}, nil
	}
	first := rv.Index(0)
	if first.Kind() == reflect.Interface {
		first = first.Elem()
	}
	if first.Kind() == reflect.Slice || first.Kind() == reflect.Array {
		out := make([][]float64, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			row, err := toFloatVector(fmt.Sprintf("%s[%d]", name, i), rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = row
		}
		return out, nil
	}
	row, err := toFloatVector(name, values)
	if err != nil {
		return nil, err
	}
	return [][]float64{row}, nil
}

func toFloat(rv reflect.Value) (float64, error) {
	if rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	default:
		return 0, fmt.Errorf("non-numeric kind %s", rv.Kind())
	}
}
