// Package explorer implements the schema-discovery stage: it enumerates a
// profile file's dimensions and variables, classifies each variable against
// the fixed vocabularies, and records which parameters carry an adjusted
// variant.
package explorer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/driftline/argopipe/internal/adapters/ncfile"
	"github.com/driftline/argopipe/internal/domain/model"
	"github.com/driftline/argopipe/internal/domain/vocab"
	"github.com/driftline/argopipe/internal/pipeline/trace"
	"github.com/driftline/argopipe/pkg/logger"
)

// Global attributes captured onto the schema report when present.
var capturedGlobalAttrs = []string{"title", "institution", "source", "Conventions"}

// Explorer produces schema reports. Pure read; no side effects on the file.
type Explorer struct {
	log logger.Logger
}

// Option applies a configuration option to the Explorer.
type Option func(*Explorer)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Explorer) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an Explorer.
func New(opts ...Option) *Explorer {
	e := &Explorer{log: logger.Named("explorer")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Explore builds the schema report for one open dataset.
// Returns ErrMalformedFile when the file lacks the minimal container
// structure: no declared dimensions or no declared variables at all.
func (e *Explorer) Explore(ctx context.Context, ds ncfile.Dataset, tr *trace.Context) (*model.SchemaReport, error) {
	dims := ds.Dimensions()
	names := ds.Variables()
	if len(dims) == 0 || len(names) == 0 {
		return nil, fmt.Errorf("%w: %s declares %d dimensions and %d variables",
			ErrMalformedFile, ds.Path(), len(dims), len(names))
	}

	report := &model.SchemaReport{
		Path:        ds.Path(),
		FileType:    DetectFileType(ds.Path()),
		Variables:   make(map[string]model.VariableInfo, len(names)),
		GlobalAttrs: make(map[string]string),
	}
	for _, d := range dims {
		report.Dimensions = append(report.Dimensions, model.Dimension{Name: d.Name, Length: d.Length})
	}
	for _, attr := range capturedGlobalAttrs {
		if v, ok := ds.Attr("", attr); ok {
			report.GlobalAttrs[attr] = v
		}
	}

	declared := make(map[string]bool, len(names))
	for _, name := range names {
		declared[name] = true
	}

	unknown := 0
	for _, name := range names {
		info := model.VariableInfo{Name: name}
		base := vocab.BaseName(name)
		switch {
		case vocab.IsCore(base):
			info.Category = model.CategoryCore
		case vocab.IsBGC(base):
			info.Category = model.CategoryBGC
		case vocab.IsMeta(name):
			info.Category = model.CategoryMeta
		default:
			info.Category = model.CategoryUnknown
			unknown++
		}
		if unit, ok := ds.Attr(name, "units"); ok {
			info.Unit = unit
		}
		if vocab.IsParameter(base) && name == base {
			info.HasAdjusted = declared[base+vocab.SuffixAdjusted]
			report.Parameters = append(report.Parameters, base)
		}
		report.Variables[name] = info
	}

	if unknown > 0 {
		tr.Note("unclassified variables bucketed as unknown", map[string]string{
			"count": fmt.Sprintf("%d", unknown),
		})
	}
	e.log.Debug(ctx, "schema explored",
		logger.String("path", ds.Path()),
		logger.String("file_type", string(report.FileType)),
		logger.Int("variables", len(names)),
		logger.Int("parameters", len(report.Parameters)),
	)
	return report, nil
}

// DetectFileType derives the advisory file-type tag from the filename's
// structural prefix.
func DetectFileType(path string) model.FileType {
	name := strings.ToUpper(filepath.Base(path))
	name = strings.TrimSuffix(name, ".NC")
	switch {
	case strings.Contains(name, "TRAJ"):
		return model.FileTypeTrajectory
	case strings.HasPrefix(name, "BR"):
		return model.FileTypeBGCRealtime
	case strings.HasPrefix(name, "BD"):
		return model.FileTypeBGCDelayed
	case strings.HasPrefix(name, "SR"), strings.HasPrefix(name, "SD"), strings.HasPrefix(name, "S"):
		return model.FileTypeSynthetic
	case strings.HasPrefix(name, "R"):
		return model.FileTypeCoreRealtime
	case strings.HasPrefix(name, "D"):
		return model.FileTypeCoreDelayed
	default:
		return model.FileTypeUnknown
	}
}
