// Package model contains the data types passed between pipeline stages.
package model

import "time"

// FileType tags the structural kind of a profile file, derived from the
// filename prefix. Advisory metadata only; never used to reject a file.
type FileType string

// Known profile file types.
const (
	FileTypeCoreRealtime FileType = "core-realtime"
	FileTypeCoreDelayed  FileType = "core-delayed"
	FileTypeBGCRealtime  FileType = "bgc-realtime"
	FileTypeBGCDelayed   FileType = "bgc-delayed"
	FileTypeSynthetic    FileType = "synthetic"
	FileTypeTrajectory   FileType = "trajectory"
	FileTypeUnknown      FileType = "unknown"
)

// DataMode indicates how a measurement was produced.
type DataMode byte

// ARGO data modes.
const (
	ModeRealtime DataMode = 'R'
	ModeAdjusted DataMode = 'A'
	ModeDelayed  DataMode = 'D'
)

// Valid reports whether m is one of the three defined modes.
func (m DataMode) Valid() bool {
	return m == ModeRealtime || m == ModeAdjusted || m == ModeDelayed
}

func (m DataMode) String() string { return string(rune(m)) }

// PrefersAdjusted reports whether the mode calls for the adjusted variable
// variant when one exists.
func (m DataMode) PrefersAdjusted() bool {
	return m == ModeAdjusted || m == ModeDelayed
}

// ProfileFile describes one input file. Read-only; never mutated downstream.
type ProfileFile struct {
	Path     string
	Type     FileType
	Platform string
	Mode     DataMode
}

// Dimension is one declared dimension of the source file.
type Dimension struct {
	Name   string
	Length int
}

// VariableInfo describes one declared variable as classified by the explorer.
type VariableInfo struct {
	Name        string
	Category    Category
	Unit        string
	HasAdjusted bool
}

// Category buckets a variable by its role.
type Category int

// Variable categories. Unknown is explicit so unrecognized variables are
// surfaced rather than silently ignored.
const (
	CategoryCore Category = iota
	CategoryBGC
	CategoryMeta
	CategoryUnknown
)

func (c Category) String() string {
	switch c {
	case CategoryCore:
		return "core"
	case CategoryBGC:
		return "bgc"
	case CategoryMeta:
		return "metadata"
	default:
		return "unknown"
	}
}

// SchemaReport is the explorer's output. Immutable once produced.
type SchemaReport struct {
	Path        string
	FileType    FileType
	Dimensions  []Dimension
	Variables   map[string]VariableInfo
	GlobalAttrs map[string]string
	// Parameters lists the physical parameter base names (core and bgc)
	// present in the file, in declared order.
	Parameters []string
}

// Variable looks up a variable, reporting whether it was declared.
func (r *SchemaReport) Variable(name string) (VariableInfo, bool) {
	v, ok := r.Variables[name]
	return v, ok
}

// PresenceCheck records whether one mandatory variable was declared.
type PresenceCheck struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
}

// RangeCheck summarizes the range scan of one physical variable.
type RangeCheck struct {
	Name       string  `json:"name"`
	Checked    int     `json:"checked"`
	OutOfRange int     `json:"out_of_range"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

// Verdict is the overall validation outcome.
type Verdict string

// Validation verdicts. Fail is reserved for missing mandatory variables or
// hard range violations; flag anomalies only ever downgrade to warnings.
const (
	VerdictPass         Verdict = "pass"
	VerdictPassWarnings Verdict = "pass-with-warnings"
	VerdictFail         Verdict = "fail"
)

// ValidationReport is the validator's output.
type ValidationReport struct {
	Mandatory []PresenceCheck
	Ranges    []RangeCheck
	// FlagHistogram maps QC variable name to observed flag value counts.
	// Flag values are rendered as strings ("1".."9" or a character code).
	FlagHistogram map[string]map[string]int
	Verdict       Verdict
	Warnings      []string
}

// Observation is one retained measurement value.
type Observation struct {
	ProfileID string
	Pressure  float64
	Parameter string
	Value     float64
	Flag      string
	Mode      DataMode
	// Adjusted records which variant the value was drawn from.
	Adjusted bool
}

// ParamStats summarizes one parameter's retained values within a profile.
type ParamStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// ProfileSummary is one row per dive.
type ProfileSummary struct {
	ProfileID  string
	Platform   string
	Cycle      int
	Direction  string
	Timestamp  time.Time
	Latitude   float64
	Longitude  float64
	PositionQC string
	Stats      map[string]ParamStats
}

// QualityReport summarizes data completeness per file. Write-once artifact.
type QualityReport struct {
	FileID     string         `json:"file_id"`
	SourcePath string         `json:"source_path"`
	Verdict    Verdict        `json:"verdict"`
	Accepted   int            `json:"accepted"`
	Flagged    int            `json:"flagged"`
	Rejected   map[string]int `json:"rejected"`
	Warnings   []string       `json:"warnings,omitempty"`
}
