// Package export writes the four per-file output artifacts: the observation
// table, the profile-summary table, the quality report, and the processing
// log. Every artifact is written to a temporary file and renamed into place,
// so a killed process never leaves a partial file that looks complete.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/driftline/argopipe/internal/pipeline/preprocess"
	"github.com/driftline/argopipe/internal/pipeline/trace"
	"github.com/driftline/argopipe/pkg/logger"
	"github.com/driftline/argopipe/pkg/metrics"
)

// Format selects the observation-table encoding.
type Format string

// Supported table formats.
const (
	FormatCSV   Format = "csv"
	FormatArrow Format = "arrow"
)

// Artifacts holds the committed paths of the four outputs.
type Artifacts struct {
	Observations string
	Profiles     string
	Quality      string
	Processing   string
}

// Exporter writes artifacts into one output directory.
type Exporter struct {
	dir    string
	format Format
	log    logger.Logger
}

// Option applies a configuration option to the Exporter.
type Option func(*Exporter)

// WithFormat sets the observation-table format.
func WithFormat(f Format) Option {
	return func(e *Exporter) {
		if f != "" {
			e.format = f
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Exporter) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an Exporter targeting dir.
func New(dir string, opts ...Option) *Exporter {
	e := &Exporter{
		dir:    dir,
		format: FormatCSV,
		log:    logger.Named("export"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes all four artifacts keyed by fileID. Any I/O failure is
// surfaced as ErrExport; nothing is retried here and no partial artifact is
// left behind.
func (e *Exporter) Export(ctx context.Context, fileID string, res *preprocess.Result, tr *trace.Context) (*Artifacts, error) {
	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		metrics.RecordExportError()
		return nil, fmt.Errorf("%w: creating output directory: %v", ErrExport, err)
	}

	arts := &Artifacts{}

	obsName, obsWrite, err := e.observationWriter(fileID, res)
	if err != nil {
		metrics.RecordExportError()
		return nil, err
	}
	if arts.Observations, err = e.commit(obsName, "observations", obsWrite); err != nil {
		return nil, err
	}

	profName := fileID + "_profiles.csv"
	if arts.Profiles, err = e.commit(profName, "profiles", func(w io.Writer) error {
		return writeProfileCSV(w, res.Summaries)
	}); err != nil {
		return nil, err
	}

	quality := res.Quality
	quality.FileID = fileID
	if arts.Quality, err = e.commit(fileID+"_quality.json", "quality", func(w io.Writer) error {
		return writeJSON(w, quality)
	}); err != nil {
		return nil, err
	}

	// Finalized last so the log covers every decision, including exports.
	plog := tr.Finalize()
	if arts.Processing, err = e.commit(fileID+"_processing.json", "processing", func(w io.Writer) error {
		return writeJSON(w, plog)
	}); err != nil {
		return nil, err
	}

	e.log.Info(ctx, "artifacts committed",
		logger.String("file_id", fileID),
		logger.String("observations", arts.Observations),
		logger.Int("observation_rows", len(res.Observations)),
		logger.Int("profile_rows", len(res.Summaries)),
	)
	return arts, nil
}

func (e *Exporter) observationWriter(fileID string, res *preprocess.Result) (string, func(io.Writer) error, error) {
	switch e.format {
	case FormatCSV:
		return fileID + "_observations.csv", func(w io.Writer) error {
			return writeObservationCSV(w, res.Observations)
		}, nil
	case FormatArrow:
		return fileID + "_observations.arrow", func(w io.Writer) error {
			return writeObservationArrow(w, res.Observations)
		}, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownFormat, e.format)
	}
}

// commit writes one artifact atomically: temp file, then rename.
func (e *Exporter) commit(name, kind string, write func(io.Writer) error) (string, error) {
	final := filepath.Join(e.dir, name)
	tmp := filepath.Join(e.dir, ".tmp-"+uuid.NewString()+"-"+name)

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		metrics.RecordExportError()
		return "", fmt.Errorf("%w: creating %s: %v", ErrExport, tmp, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		metrics.RecordExportError()
		return "", fmt.Errorf("%w: writing %s: %v", ErrExport, name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		metrics.RecordExportError()
		return "", fmt.Errorf("%w: closing %s: %v", ErrExport, name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		metrics.RecordExportError()
		return "", fmt.Errorf("%w: committing %s: %v", ErrExport, name, err)
	}
	metrics.RecordArtifactWritten(kind)
	return final, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
