// Package preprocess implements the transformation stage: data-mode-aware
// variable-variant selection, quality-flag filtering, identification-field
// decoding, temporal and spatial normalization, and sparse-BGC handling.
// Output is the flattened observation set plus per-profile summaries.
package preprocess

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/driftline/argopipe/internal/adapters/ncfile"
	"github.com/driftline/argopipe/internal/domain/model"
	"github.com/driftline/argopipe/internal/domain/qc"
	"github.com/driftline/argopipe/internal/domain/vocab"
	"github.com/driftline/argopipe/internal/pipeline/trace"
	"github.com/driftline/argopipe/internal/pipeline/validator"
	"github.com/driftline/argopipe/pkg/logger"
	"github.com/driftline/argopipe/pkg/metrics"
)

// Exclusion reasons recorded in the quality report.
const (
	ReasonRejectedFlag    = "rejected quality flag"
	ReasonReviewExcluded  = "review flag excluded"
	ReasonOutOfRange      = "out of range"
	ReasonInvalidPosition = "invalid position"
	ReasonInvalidPressure = "invalid pressure"
	ReasonDuplicateDepth  = "duplicate depth"
)

// Preprocessor produces retained observations and profile summaries.
type Preprocessor struct {
	policy *qc.Policy
	log    logger.Logger
}

// Option applies a configuration option to the Preprocessor.
type Option func(*Preprocessor)

// WithPolicy sets the flag-evaluation policy.
func WithPolicy(p *qc.Policy) Option {
	return func(pp *Preprocessor) {
		if p != nil {
			pp.policy = p
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(pp *Preprocessor) {
		if log != nil {
			pp.log = log
		}
	}
}

// New creates a Preprocessor with the default flag policy.
func New(opts ...Option) *Preprocessor {
	p := &Preprocessor{
		policy: qc.NewPolicy(),
		log:    logger.Named("preprocess"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result bundles the preprocessing outputs handed to the exporter.
type Result struct {
	Observations []model.Observation
	Summaries    []model.ProfileSummary
	Quality      model.QualityReport
}

// profileMeta holds decoded per-profile metadata.
type profileMeta struct {
	id         string
	platform   string
	mode       model.DataMode
	cycle      int
	direction  string
	timestamp  time.Time
	hasTime    bool
	latitude   float64
	longitude  float64
	positionQC string
	valid      bool
}

// Run transforms one dataset into its retained observations and summaries.
// Fails with ErrPreprocessing when a coordinate variable cannot be read at
// all; individual decode failures are recovered with sentinel defaults.
func (p *Preprocessor) Run(ctx context.Context, ds ncfile.Dataset, schema *model.SchemaReport, vrep *model.ValidationReport, tr *trace.Context) (*Result, error) {
	lats, err := ds.FloatVector("LATITUDE")
	if err != nil {
		return nil, fmt.Errorf("%w: reading LATITUDE: %v", ErrPreprocessing, err)
	}
	lons, err := ds.FloatVector("LONGITUDE")
	if err != nil {
		return nil, fmt.Errorf("%w: reading LONGITUDE: %v", ErrPreprocessing, err)
	}
	julds, err := ds.FloatVector("JULD")
	if err != nil {
		return nil, fmt.Errorf("%w: reading JULD: %v", ErrPreprocessing, err)
	}

	nProf := len(lats)
	if len(lons) < nProf {
		nProf = len(lons)
	}
	if len(julds) < nProf {
		nProf = len(julds)
	}
	if nProf == 0 {
		return nil, fmt.Errorf("%w: file declares no profiles", ErrPreprocessing)
	}

	profiles, rejected := p.decodeProfiles(ctx, ds, tr, nProf, lats, lons, julds)

	presSel := p.selectVariant(ds, schema, "PRES", profiles, globalModes(profiles), tr)
	if presSel.rows == nil {
		return nil, fmt.Errorf("%w: pressure variable unreadable", ErrPreprocessing)
	}

	observations := make([]model.Observation, 0, nProf*16)
	stats := make(map[string]map[string]model.ParamStats)
	accepted, flagged := 0, 0
	paramModes := charsOrNil(ds, "PARAMETER_DATA_MODE")

	for paramIdx, param := range schema.Parameters {
		if param == "PRES" {
			continue // pressure is the depth coordinate, not an emitted parameter
		}
		modes := effectiveModes(profiles, paramModes, paramIdx)
		sel := p.selectVariant(ds, schema, param, profiles, modes, tr)
		if sel.rows == nil {
			continue
		}
		p.noteSparseBGC(ds, schema, param, sel, tr)

		seen := make(map[string]bool)
		exclusions := make(map[string]int)
		for prof := 0; prof < nProf && prof < len(sel.rows); prof++ {
			meta := &profiles[prof]
			presRow := rowAt(presSel.rows, prof)
			for i, value := range sel.rows[prof] {
				if validator.IsFill(value) {
					continue // a hole, not a measurement
				}
				if !meta.valid {
					exclusions[ReasonInvalidPosition]++
					continue
				}
				if i >= len(presRow) || validator.IsFill(presRow[i]) {
					exclusions[ReasonInvalidPressure]++
					continue
				}
				if r, ok := vocab.RangeFor(param); ok && !r.Contains(value) {
					exclusions[ReasonOutOfRange]++
					continue
				}

				flag := sel.flagAt(prof, i)
				retain, decision := p.policy.Retain(ctx, flag)
				if !retain {
					if decision == qc.Rejected {
						exclusions[ReasonRejectedFlag]++
					} else {
						exclusions[ReasonReviewExcluded]++
					}
					continue
				}

				key := fmt.Sprintf("%s|%.4f|%s", meta.id, presRow[i], param)
				if seen[key] {
					exclusions[ReasonDuplicateDepth]++
					continue
				}
				seen[key] = true

				observations = append(observations, model.Observation{
					ProfileID: meta.id,
					Pressure:  presRow[i],
					Parameter: param,
					Value:     value,
					Flag:      flag.String(),
					Mode:      sel.modeAt(prof),
					Adjusted:  sel.adjustedAt(prof),
				})
				if decision == qc.Review {
					flagged++
					metrics.RecordObservationFlagged()
				} else {
					accepted++
					metrics.RecordObservationAccepted()
				}
				updateStats(stats, meta.id, param, value)
			}
		}
		for reason, count := range exclusions {
			rejected[reason] += count
			tr.Exclusion(param, reason, count)
			metrics.RecordObservationRejected(reason)
		}
	}

	p.checkMonotonicity(presSel.rows, profiles, tr)

	summaries := buildSummaries(profiles, stats)
	sortObservations(observations)

	quality := model.QualityReport{
		SourcePath: ds.Path(),
		Verdict:    vrep.Verdict,
		Accepted:   accepted,
		Flagged:    flagged,
		Rejected:   rejected,
		Warnings:   vrep.Warnings,
	}

	p.log.Info(ctx, "preprocessing complete",
		logger.String("path", ds.Path()),
		logger.Int("profiles", len(summaries)),
		logger.Int("observations", len(observations)),
		logger.Int("flagged", flagged),
	)
	return &Result{Observations: observations, Summaries: summaries, Quality: quality}, nil
}

// decodeProfiles decodes per-profile identification fields and normalizes
// coordinates. Decode failures substitute sentinels and keep going.
func (p *Preprocessor) decodeProfiles(ctx context.Context, ds ncfile.Dataset, tr *trace.Context, nProf int, lats, lons, julds []float64) ([]profileMeta, map[string]int) {
	rejected := make(map[string]int)
	platforms := charsOrNil(ds, "PLATFORM_NUMBER")
	modes := charsOrNil(ds, "DATA_MODE")
	cycles := vectorOrNil(ds, "CYCLE_NUMBER")
	directions := charsOrNil(ds, "DIRECTION")
	positionQC := charsOrNil(ds, "POSITION_QC")

	usedIDs := make(map[string]bool)
	profiles := make([]profileMeta, nProf)
	for i := 0; i < nProf; i++ {
		meta := &profiles[i]

		dec := DecodePlatform(at(platforms, i))
		if dec.FellBack {
			tr.DecodeFailure("PLATFORM_NUMBER", dec.Reason, dec.Value)
			metrics.RecordDecodeFallback("PLATFORM_NUMBER")
			p.log.Warn(ctx, "platform decode failed, sentinel substituted",
				logger.String("reason", dec.Reason))
		}
		meta.platform = dec.Value

		mode, modeDec := DecodeMode(at(modes, i))
		if modeDec.FellBack {
			tr.DecodeFailure("DATA_MODE", modeDec.Reason, modeDec.Value)
			metrics.RecordDecodeFallback("DATA_MODE")
		}
		meta.mode = mode

		meta.cycle = i
		if i < len(cycles) && !validator.IsFill(cycles[i]) {
			meta.cycle = int(cycles[i])
		}
		meta.direction = trimmedAt(directions, i)
		meta.positionQC = qc.Parse(byteAt(positionQC, i)).String()

		meta.id = uniqueProfileID(usedIDs, meta.platform, meta.cycle)

		meta.latitude = lats[i]
		meta.longitude = lons[i]
		latRange, _ := vocab.RangeFor("LATITUDE")
		lonRange, _ := vocab.RangeFor("LONGITUDE")
		meta.valid = !validator.IsFill(lats[i]) && !validator.IsFill(lons[i]) &&
			latRange.Contains(lats[i]) && lonRange.Contains(lons[i])
		if !meta.valid {
			tr.Exclusion("position", ReasonInvalidPosition, 1)
		}

		if ts, ok := JuldToTime(julds[i]); ok {
			meta.timestamp = ts
			meta.hasTime = true
		} else {
			tr.Note("timestamp unavailable for profile", map[string]string{
				"profile_id": meta.id,
			})
		}
	}
	return profiles, rejected
}

// selection holds the chosen variant data for one parameter.
type selection struct {
	rows     [][]float64
	adjRows  [][]float64
	qcRows   []string
	adjQC    []string
	profiles []profileMeta
	modes    []model.DataMode
	hasAdj   bool
}

func (s *selection) adjustedAt(prof int) bool {
	return s.hasAdj && prof < len(s.modes) && s.modes[prof].PrefersAdjusted()
}

func (s *selection) modeAt(prof int) model.DataMode {
	if prof < len(s.modes) {
		return s.modes[prof]
	}
	return model.ModeRealtime
}

func (s *selection) flagAt(prof, level int) qc.Flag {
	rows := s.qcRows
	if s.adjustedAt(prof) && s.adjQC != nil {
		rows = s.adjQC
	}
	if prof < len(rows) && level < len(rows[prof]) {
		return qc.Parse(rows[prof][level])
	}
	return qc.Missing()
}

// selectVariant picks adjusted or raw data per the data mode, logging the
// choice and the raw fallback when an adjusted variant is expected but
// absent. The fallback is recorded once per parameter.
func (p *Preprocessor) selectVariant(ds ncfile.Dataset, schema *model.SchemaReport, param string, profiles []profileMeta, modes []model.DataMode, tr *trace.Context) selection {
	sel := selection{profiles: profiles, modes: modes}

	info, declared := schema.Variable(param)
	if !declared {
		return sel
	}

	anyPrefersAdjusted := false
	for _, m := range modes {
		if m.PrefersAdjusted() {
			anyPrefersAdjusted = true
			break
		}
	}

	raw, err := ds.FloatMatrix(param)
	if err != nil {
		return sel
	}
	sel.rows = raw
	sel.qcRows = charsOrNil(ds, param+vocab.SuffixQC)

	if info.HasAdjusted {
		if adj, err := ds.FloatMatrix(param + vocab.SuffixAdjusted); err == nil {
			sel.adjRows = adj
			sel.adjQC = charsOrNil(ds, param+vocab.SuffixAdjustedQC)
			sel.hasAdj = true
		}
	}

	switch {
	case anyPrefersAdjusted && sel.hasAdj:
		tr.VariantSelected(param, param+vocab.SuffixAdjusted, modeSummary(modes))
		// Adjusted rows replace raw rows for the profiles whose mode calls
		// for them.
		merged := make([][]float64, len(sel.rows))
		for i := range sel.rows {
			if i < len(sel.adjRows) && i < len(modes) && modes[i].PrefersAdjusted() {
				merged[i] = sel.adjRows[i]
			} else {
				merged[i] = sel.rows[i]
			}
		}
		sel.rows = merged
	case anyPrefersAdjusted && !sel.hasAdj:
		tr.Fallback(param, "adjusted variant not declared")
		tr.VariantSelected(param, param, modeSummary(modes))
	default:
		tr.VariantSelected(param, param, modeSummary(modes))
	}
	return sel
}

// effectiveModes resolves the per-profile data mode for one parameter,
// letting PARAMETER_DATA_MODE override the file-level DATA_MODE when a row
// carries a valid entry at the parameter's position.
func effectiveModes(profiles []profileMeta, paramModes []string, paramIdx int) []model.DataMode {
	modes := globalModes(profiles)
	if paramModes == nil || paramIdx < 0 {
		return modes
	}
	for i := range modes {
		if i < len(paramModes) && paramIdx < len(paramModes[i]) {
			if m := model.DataMode(paramModes[i][paramIdx]); m.Valid() {
				modes[i] = m
			}
		}
	}
	return modes
}

func globalModes(profiles []profileMeta) []model.DataMode {
	modes := make([]model.DataMode, len(profiles))
	for i := range profiles {
		modes[i] = profiles[i].mode
	}
	return modes
}

// noteSparseBGC logs a note only when a declared, non-empty BGC variable is
// absent for some profile. A BGC variable empty for the whole file is normal
// sparseness and stays silent.
func (p *Preprocessor) noteSparseBGC(ds ncfile.Dataset, schema *model.SchemaReport, param string, sel selection, tr *trace.Context) {
	if !vocab.IsBGC(param) {
		return
	}
	nonEmpty := false
	for _, row := range sel.rows {
		for _, v := range row {
			if !validator.IsFill(v) {
				nonEmpty = true
				break
			}
		}
		if nonEmpty {
			break
		}
	}
	if !nonEmpty {
		return
	}
	for prof, row := range sel.rows {
		empty := true
		for _, v := range row {
			if !validator.IsFill(v) {
				empty = false
				break
			}
		}
		if empty && prof < len(sel.profiles) {
			tr.Note("declared non-empty bgc parameter absent for profile", map[string]string{
				"parameter":  param,
				"profile_id": sel.profiles[prof].id,
			})
		}
	}
}

// checkMonotonicity notes pressure inversions; deduplication has already
// kept the first-accepted value for exact duplicates.
func (p *Preprocessor) checkMonotonicity(presRows [][]float64, profiles []profileMeta, tr *trace.Context) {
	for prof, row := range presRows {
		prev := -1.0
		for _, v := range row {
			if validator.IsFill(v) {
				continue
			}
			if v < prev {
				id := ""
				if prof < len(profiles) {
					id = profiles[prof].id
				}
				tr.Note("non-monotonic pressure sequence", map[string]string{
					"profile_id": id,
				})
				break
			}
			prev = v
		}
	}
}

func buildSummaries(profiles []profileMeta, stats map[string]map[string]model.ParamStats) []model.ProfileSummary {
	summaries := make([]model.ProfileSummary, 0, len(profiles))
	for i := range profiles {
		meta := &profiles[i]
		if !meta.valid {
			continue
		}
		s := model.ProfileSummary{
			ProfileID:  meta.id,
			Platform:   meta.platform,
			Cycle:      meta.cycle,
			Direction:  meta.direction,
			Timestamp:  meta.timestamp,
			Latitude:   meta.latitude,
			Longitude:  meta.longitude,
			PositionQC: meta.positionQC,
			Stats:      stats[meta.id],
		}
		if s.Stats == nil {
			s.Stats = map[string]model.ParamStats{}
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func updateStats(stats map[string]map[string]model.ParamStats, profileID, param string, value float64) {
	byParam := stats[profileID]
	if byParam == nil {
		byParam = make(map[string]model.ParamStats)
		stats[profileID] = byParam
	}
	st, ok := byParam[param]
	if !ok {
		st = model.ParamStats{Min: value, Max: value}
	}
	st.Count++
	if value < st.Min {
		st.Min = value
	}
	if value > st.Max {
		st.Max = value
	}
	byParam[param] = st
}

// sortObservations fixes the artifact order so identical inputs produce
// identical outputs.
func sortObservations(obs []model.Observation) {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].ProfileID != obs[j].ProfileID {
			return obs[i].ProfileID < obs[j].ProfileID
		}
		if obs[i].Pressure != obs[j].Pressure {
			return obs[i].Pressure < obs[j].Pressure
		}
		return obs[i].Parameter < obs[j].Parameter
	})
}

func uniqueProfileID(used map[string]bool, platform string, cycle int) string {
	id := fmt.Sprintf("%s_%03d", platform, cycle)
	for n := 1; used[id]; n++ {
		id = fmt.Sprintf("%s_%03d_p%d", platform, cycle, n)
	}
	used[id] = true
	return id
}

func modeSummary(modes []model.DataMode) string {
	if len(modes) == 0 {
		return ""
	}
	return modes[0].String()
}

// Accessor helpers tolerating absent optional variables.

func charsOrNil(ds ncfile.Dataset, name string) []string {
	if !ds.Has(name) {
		return nil
	}
	v, err := ds.Chars(name)
	if err != nil {
		return nil
	}
	return v
}

func vectorOrNil(ds ncfile.Dataset, name string) []float64 {
	if !ds.Has(name) {
		return nil
	}
	v, err := ds.FloatVector(name)
	if err != nil {
		return nil
	}
	return v
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func trimmedAt(values []string, i int) string {
	s := at(values, i)
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == 0) {
		s = s[:len(s)-1]
	}
	return s
}

func byteAt(values []string, i int) byte {
	s := at(values, i)
	if len(s) == 0 {
		return ' '
	}
	return s[0]
}

func rowAt(rows [][]float64, i int) []float64 {
	if i < len(rows) {
		return rows[i]
	}
	return nil
}
