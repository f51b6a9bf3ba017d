// Package vocab holds the fixed variable vocabularies and physical ranges
// used to classify profile-file variables at startup.
package vocab

import "strings"

// Variant suffixes attached to parameter variable names.
const (
	SuffixAdjusted      = "_ADJUSTED"
	SuffixQC            = "_QC"
	SuffixAdjustedQC    = "_ADJUSTED_QC"
	SuffixAdjustedError = "_ADJUSTED_ERROR"
)

// coreParams are the physical parameters every core file may carry.
var coreParams = map[string]bool{
	"PRES": true,
	"TEMP": true,
	"PSAL": true,
}

// bgcParams are the biogeochemical parameters carried by BGC and synthetic
// files. Sparse by nature; absence for a given profile is normal.
var bgcParams = map[string]bool{
	"DOXY":               true,
	"CHLA":               true,
	"CHLA_FLUORESCENCE":  true,
	"BBP700":             true,
	"BBP532":             true,
	"NITRATE":            true,
	"PH_IN_SITU_TOTAL":   true,
	"CDOM":               true,
	"DOWN_IRRADIANCE380": true,
	"DOWN_IRRADIANCE412": true,
	"DOWN_IRRADIANCE490": true,
	"DOWNWELLING_PAR":    true,
}

// metaVars are identification and coordinate variables.
var metaVars = map[string]bool{
	"PLATFORM_NUMBER":     true,
	"CYCLE_NUMBER":        true,
	"DATA_MODE":           true,
	"PARAMETER_DATA_MODE": true,
	"DIRECTION":           true,
	"JULD":                true,
	"JULD_QC":             true,
	"JULD_LOCATION":       true,
	"LATITUDE":            true,
	"LONGITUDE":           true,
	"POSITION_QC":         true,
	"STATION_PARAMETERS":  true,
	"DATA_TYPE":           true,
	"FORMAT_VERSION":      true,
	"HANDBOOK_VERSION":    true,
	"REFERENCE_DATE_TIME": true,
	"PROJECT_NAME":        true,
	"PI_NAME":             true,
	"WMO_INST_TYPE":       true,
	"POSITIONING_SYSTEM":  true,
}

// Mandatory returns the variables whose absence always fails validation.
func Mandatory() []string {
	return []string{"JULD", "LATITUDE", "LONGITUDE", "PRES"}
}

// BaseName strips variant suffixes so TEMP_ADJUSTED_QC, TEMP_ADJUSTED,
// TEMP_QC all resolve to TEMP.
func BaseName(name string) string {
	for _, suffix := range []string{SuffixAdjustedError, SuffixAdjustedQC, SuffixAdjusted, SuffixQC} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// IsCore reports whether base is a core physical parameter.
func IsCore(base string) bool { return coreParams[base] }

// IsBGC reports whether base is a biogeochemical parameter.
func IsBGC(base string) bool { return bgcParams[base] }

// IsMeta reports whether name is a metadata/identification variable.
func IsMeta(name string) bool { return metaVars[name] }

// IsParameter reports whether base is a physical parameter of either kind.
func IsParameter(base string) bool { return coreParams[base] || bgcParams[base] }

// Range is the hard physical validity window for a parameter.
type Range struct {
	Min  float64
	Max  float64
	Unit string
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// ranges holds documented physical bounds for seawater measurements.
var ranges = map[string]Range{
	"PRES":              {Min: 0, Max: 11000, Unit: "decibar"},
	"TEMP":              {Min: -2.5, Max: 40, Unit: "degree_Celsius"},
	"PSAL":              {Min: 2, Max: 41, Unit: "psu"},
	"LATITUDE":          {Min: -90, Max: 90, Unit: "degree_north"},
	"LONGITUDE":         {Min: -180, Max: 180, Unit: "degree_east"},
	"DOXY":              {Min: -5, Max: 600, Unit: "micromole/kg"},
	"CHLA":              {Min: -0.1, Max: 50, Unit: "mg/m3"},
	"CHLA_FLUORESCENCE": {Min: -0.1, Max: 50, Unit: "mg/m3"},
	"BBP700":            {Min: -0.000025, Max: 0.1, Unit: "m-1"},
	"BBP532":            {Min: -0.000025, Max: 0.1, Unit: "m-1"},
	"NITRATE":           {Min: -2, Max: 50, Unit: "micromole/kg"},
	"PH_IN_SITU_TOTAL":  {Min: 7.0, Max: 8.8, Unit: "dimensionless"},
}

// RangeFor returns the valid range for a parameter, reporting whether one is
// defined.
func RangeFor(base string) (Range, bool) {
	r, ok := ranges[base]
	return r, ok
}
