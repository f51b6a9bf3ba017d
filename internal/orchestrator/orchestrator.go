// Package orchestrator sequences the four pipeline stages per input file and
// runs batches of files over a bounded worker pool. It is the only component
// holding cross-stage state.
package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/driftline/argopipe/internal/adapters/ncfile"
	"github.com/driftline/argopipe/internal/domain/model"
	"github.com/driftline/argopipe/internal/domain/qc"
	"github.com/driftline/argopipe/internal/pipeline/explorer"
	"github.com/driftline/argopipe/internal/pipeline/export"
	"github.com/driftline/argopipe/internal/pipeline/preprocess"
	"github.com/driftline/argopipe/internal/pipeline/trace"
	"github.com/driftline/argopipe/internal/pipeline/validator"
	"github.com/driftline/argopipe/pkg/logger"
	"github.com/driftline/argopipe/pkg/metrics"
)

// State is a file's position in the pipeline state machine.
type State string

// Pipeline states. Aborted is terminal and reachable from any stage.
const (
	StateDiscovered     State = "discovered"
	StateSchemaExplored State = "schema-explored"
	StateValidated      State = "validated"
	StatePreprocessed   State = "preprocessed"
	StateExported       State = "exported"
	StateDone           State = "done"
	StateAborted        State = "aborted"
)

// Stage names a pipeline stage for abort attribution.
type Stage string

// Pipeline stages.
const (
	StageSchema     Stage = "schema"
	StageValidate   Stage = "validate"
	StagePreprocess Stage = "preprocess"
	StageExport     Stage = "export"
)

// FileResult is the terminal outcome of one file's pipeline.
type FileResult struct {
	Path        string
	FileID      string
	State       State
	FailedStage Stage
	Reason      string
	Verdict     model.Verdict
	Artifacts   *export.Artifacts
}

// Orchestrator drives the explore-validate-preprocess-export sequence.
type Orchestrator struct {
	open     ncfile.Opener
	explorer *explorer.Explorer
	valid    *validator.Validator
	preproc  *preprocess.Preprocessor
	exporter *export.Exporter

	outDir         string
	format         export.Format
	policy         *qc.Policy
	skipValidation bool
	continueOnFail bool
	workers        int

	log logger.Logger
}

// New creates an Orchestrator writing artifacts to outDir.
func New(outDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		open:    ncfile.Open,
		outDir:  outDir,
		format:  export.FormatCSV,
		policy:  qc.NewPolicy(),
		workers: defaultWorkers,
		log:     logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.explorer = explorer.New(explorer.WithLogger(o.log))
	o.valid = validator.New(validator.WithPolicy(o.policy), validator.WithLogger(o.log))
	o.preproc = preprocess.New(preprocess.WithPolicy(o.policy), preprocess.WithLogger(o.log))
	o.exporter = export.New(o.outDir, export.WithFormat(o.format), export.WithLogger(o.log))
	return o
}

// ProcessFile runs one file through the whole pipeline and returns its
// terminal result. Stage order is strict; a stage failure aborts only this
// file.
func (o *Orchestrator) ProcessFile(ctx context.Context, path string) FileResult {
	fileID := FileID(path)
	tr := trace.New(fileID)
	result := FileResult{Path: path, FileID: fileID, State: StateDiscovered}

	ds, err := o.open(path)
	if err != nil {
		return o.abort(ctx, result, StageSchema, err.Error())
	}
	defer ds.Close()

	schema, err := o.runExplore(ctx, ds, tr)
	if err != nil {
		return o.abort(ctx, result, StageSchema, err.Error())
	}
	result.State = StateSchemaExplored

	vrep, err := o.runValidate(ctx, ds, schema, tr)
	if err != nil {
		return o.abort(ctx, result, StageValidate, err.Error())
	}
	result.State = StateValidated
	result.Verdict = vrep.Verdict

	if vrep.Verdict == model.VerdictFail && !o.continueOnFail {
		return o.abort(ctx, result, StageValidate, "validation verdict fail")
	}

	res, err := o.runPreprocess(ctx, ds, schema, vrep, tr)
	if err != nil {
		return o.abort(ctx, result, StagePreprocess, err.Error())
	}
	result.State = StatePreprocessed

	arts, err := o.runExport(ctx, fileID, res, tr)
	if err != nil {
		return o.abort(ctx, result, StageExport, err.Error())
	}
	result.State = StateExported
	result.Artifacts = arts

	result.State = StateDone
	metrics.RecordFileProcessed()
	o.log.Info(ctx, "file done",
		logger.String("path", path),
		logger.String("file_id", fileID),
		logger.String("verdict", string(vrep.Verdict)),
	)
	return result
}

func (o *Orchestrator) runExplore(ctx context.Context, ds ncfile.Dataset, tr *trace.Context) (*model.SchemaReport, error) {
	defer stageTimer(StageSchema)()
	return o.explorer.Explore(ctx, ds, tr)
}

func (o *Orchestrator) runValidate(ctx context.Context, ds ncfile.Dataset, schema *model.SchemaReport, tr *trace.Context) (*model.ValidationReport, error) {
	if o.skipValidation {
		tr.Note("validation skipped by configuration", nil)
		return &model.ValidationReport{Verdict: model.VerdictPass}, nil
	}
	defer stageTimer(StageValidate)()
	return o.valid.Validate(ctx, ds, schema, tr)
}

func (o *Orchestrator) runPreprocess(ctx context.Context, ds ncfile.Dataset, schema *model.SchemaReport, vrep *model.ValidationReport, tr *trace.Context) (*preprocess.Result, error) {
	defer stageTimer(StagePreprocess)()
	return o.preproc.Run(ctx, ds, schema, vrep, tr)
}

func (o *Orchestrator) runExport(ctx context.Context, fileID string, res *preprocess.Result, tr *trace.Context) (*export.Artifacts, error) {
	defer stageTimer(StageExport)()
	return o.exporter.Export(ctx, fileID, res, tr)
}

func (o *Orchestrator) abort(ctx context.Context, result FileResult, stage Stage, reason string) FileResult {
	result.State = StateAborted
	result.FailedStage = stage
	result.Reason = reason
	metrics.RecordFileAborted(string(stage))
	o.log.Error(ctx, "file aborted",
		logger.String("path", result.Path),
		logger.String("stage", string(stage)),
		logger.String("reason", reason),
	)
	return result
}

func stageTimer(stage Stage) func() {
	start := time.Now()
	return func() {
		metrics.RecordStageDuration(string(stage), time.Since(start).Seconds())
	}
}

// FileID derives the stable artifact key from the input filename.
func FileID(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "profile"
	}
	return b.String()
}
