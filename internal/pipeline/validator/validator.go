// Package validator implements the protocol-compliance stage. It checks
// mandatory-variable presence, scans physical values against the documented
// valid ranges, and builds the quality-flag histogram. It classifies; it
// never mutates data, and it never halts the pipeline itself.
package validator

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/driftline/argopipe/internal/adapters/ncfile"
	"github.com/driftline/argopipe/internal/domain/model"
	"github.com/driftline/argopipe/internal/domain/qc"
	"github.com/driftline/argopipe/internal/domain/vocab"
	"github.com/driftline/argopipe/internal/pipeline/trace"
	"github.com/driftline/argopipe/pkg/logger"
)

// fillThreshold marks the ARGO fill value (99999.0) and anything
// suspiciously close to it; such entries are holes, not measurements.
const fillThreshold = 99990.0

// Validator produces validation reports.
type Validator struct {
	policy *qc.Policy
	log    logger.Logger
}

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithPolicy sets the flag-evaluation policy.
func WithPolicy(p *qc.Policy) Option {
	return func(v *Validator) {
		if p != nil {
			v.policy = p
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(v *Validator) {
		if log != nil {
			v.log = log
		}
	}
}

// New creates a Validator with the default flag policy.
func New(opts ...Option) *Validator {
	v := &Validator{
		policy: qc.NewPolicy(),
		log:    logger.Named("validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate builds the validation report for one dataset.
//
// Verdict rules: missing mandatory variables always fail, as does a
// physically impossible coordinate value (latitude or longitude outside its
// hard bounds). Out-of-range measurement values and flag-distribution
// anomalies only ever downgrade the verdict to pass-with-warnings; the
// affected values are marked for exclusion by the preprocessor.
func (v *Validator) Validate(ctx context.Context, ds ncfile.Dataset, schema *model.SchemaReport, tr *trace.Context) (*model.ValidationReport, error) {
	report := &model.ValidationReport{
		FlagHistogram: make(map[string]map[string]int),
	}

	missing := v.checkMandatory(ds, report)
	hardRangeFail := v.checkRanges(ctx, ds, schema, report, tr)
	v.collectFlagHistogram(ctx, ds, schema, report)
	v.checkChronology(ds, tr)

	switch {
	case missing || hardRangeFail:
		report.Verdict = model.VerdictFail
	case len(report.Warnings) > 0:
		report.Verdict = model.VerdictPassWarnings
	default:
		report.Verdict = model.VerdictPass
	}

	v.log.Info(ctx, "validation complete",
		logger.String("path", ds.Path()),
		logger.String("verdict", string(report.Verdict)),
		logger.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}

// checkMandatory fills the presence sequence and reports whether any
// mandatory variable is absent.
func (v *Validator) checkMandatory(ds ncfile.Dataset, report *model.ValidationReport) bool {
	missing := false
	for _, name := range vocab.Mandatory() {
		present := ds.Has(name)
		report.Mandatory = append(report.Mandatory, model.PresenceCheck{Name: name, Present: present})
		if !present {
			report.Warnings = append(report.Warnings, fmt.Sprintf("mandatory variable %s is absent", name))
			missing = true
		}
	}
	return missing
}

// checkRanges scans coordinates and physical parameters. Returns true when a
// coordinate value violates its hard bounds.
func (v *Validator) checkRanges(ctx context.Context, ds ncfile.Dataset, schema *model.SchemaReport, report *model.ValidationReport, tr *trace.Context) bool {
	hardFail := false

	for _, coord := range []string{"LATITUDE", "LONGITUDE"} {
		if !ds.Has(coord) {
			continue
		}
		values, err := ds.FloatVector(coord)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("cannot read %s: %v", coord, err))
			continue
		}
		rc := scanRange(coord, values)
		report.Ranges = append(report.Ranges, rc)
		if rc.OutOfRange > 0 {
			hardFail = true
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s has %d value(s) outside hard bounds", coord, rc.OutOfRange))
		}
	}

	for _, param := range schema.Parameters {
		rows, err := ds.FloatMatrix(param)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("cannot read %s: %v", param, err))
			continue
		}
		flat := flatten(rows)
		rc := scanRange(param, flat)
		report.Ranges = append(report.Ranges, rc)
		if rc.OutOfRange > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s has %d out-of-range value(s) marked for exclusion", param, rc.OutOfRange))
			tr.Note("out-of-range values marked for exclusion", map[string]string{
				"parameter": param,
				"count":     fmt.Sprintf("%d", rc.OutOfRange),
			})
		}
	}
	return hardFail
}

// collectFlagHistogram counts observed flag values per QC variable.
func (v *Validator) collectFlagHistogram(ctx context.Context, ds ncfile.Dataset, schema *model.SchemaReport, report *model.ValidationReport) {
	qcVars := make([]string, 0, len(schema.Variables))
	for name := range schema.Variables {
		if isQCName(name) {
			qcVars = append(qcVars, name)
		}
	}
	sort.Strings(qcVars)

	for _, name := range qcVars {
		rows, err := ds.Chars(name)
		if err != nil {
			continue
		}
		hist := make(map[string]int)
		rejected, review := 0, 0
		for _, row := range rows {
			for i := 0; i < len(row); i++ {
				f := qc.Parse(row[i])
				hist[f.String()]++
				switch v.policy.Evaluate(ctx, f) {
				case qc.Rejected:
					rejected++
				case qc.Review:
					review++
				}
			}
		}
		report.FlagHistogram[name] = hist
		if rejected > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s carries %d rejected-class flag(s)", name, rejected))
		}
		if review > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s carries %d review-class flag(s)", name, review))
		}
	}
}

// checkChronology notes a JULD sequence running backwards across profiles.
// Advisory only; never affects the verdict.
func (v *Validator) checkChronology(ds ncfile.Dataset, tr *trace.Context) {
	if !ds.Has("JULD") {
		return
	}
	julds, err := ds.FloatVector("JULD")
	if err != nil {
		return
	}
	prev := math.Inf(-1)
	for _, d := range julds {
		if isFill(d) {
			continue
		}
		if d < prev {
			tr.Note("JULD sequence not chronological", nil)
			return
		}
		prev = d
	}
}

func isQCName(name string) bool {
	return len(name) > 3 && name[len(name)-3:] == vocab.SuffixQC
}

// scanRange checks values against the vocabulary range, skipping fill values.
func scanRange(name string, values []float64) model.RangeCheck {
	rc := model.RangeCheck{Name: name, Min: math.Inf(1), Max: math.Inf(-1)}
	r, hasRange := vocab.RangeFor(name)
	for _, val := range values {
		if isFill(val) {
			continue
		}
		rc.Checked++
		if val < rc.Min {
			rc.Min = val
		}
		if val > rc.Max {
			rc.Max = val
		}
		if hasRange && !r.Contains(val) {
			rc.OutOfRange++
		}
	}
	if rc.Checked == 0 {
		rc.Min, rc.Max = 0, 0
	}
	return rc
}

func isFill(v float64) bool {
	return math.IsNaN(v) || math.Abs(v) >= fillThreshold
}

func flatten(rows [][]float64) []float64 {
	n := 0
	for _, r := range rows {
		n += len(r)
	}
	out := make([]float64, 0, n)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

// IsFill exposes the fill-value test to the preprocessor so both stages skip
// the same holes.
func IsFill(v float64) bool { return isFill(v) }
