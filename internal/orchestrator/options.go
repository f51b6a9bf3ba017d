package orchestrator

import (
	"runtime"

	"github.com/driftline/argopipe/internal/adapters/ncfile"
	"github.com/driftline/argopipe/internal/domain/qc"
	"github.com/driftline/argopipe/internal/pipeline/export"
	"github.com/driftline/argopipe/pkg/logger"
)

// defaultWorkers bounds batch concurrency when none is configured.
var defaultWorkers = runtime.NumCPU()

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithOpener sets the dataset opener. Tests inject fixtures through this.
func WithOpener(open ncfile.Opener) Option {
	return func(o *Orchestrator) {
		if open != nil {
			o.open = open
		}
	}
}

// WithPolicy sets the QC flag policy shared by the validator and
// preprocessor.
func WithPolicy(p *qc.Policy) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithFormat sets the observation-table format.
func WithFormat(f export.Format) Option {
	return func(o *Orchestrator) {
		if f != "" {
			o.format = f
		}
	}
}

// WithSkipValidation disables the validation stage.
func WithSkipValidation(skip bool) Option {
	return func(o *Orchestrator) {
		o.skipValidation = skip
	}
}

// WithContinueOnFail lets files with a fail verdict proceed to
// preprocessing.
func WithContinueOnFail(cont bool) Option {
	return func(o *Orchestrator) {
		o.continueOnFail = cont
	}
}

// WithWorkers bounds batch concurrency.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}
