// Package config defines pipeline configuration structures and loading.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Layer file and environment values over the defaults in Load.
// - External errors are wrapped via this package's sentinel errors.
package config

import "runtime"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Workers bounds batch concurrency.
	Workers int `koanf:"workers"`

	// Format selects the observation-table encoding: csv or arrow.
	Format string `koanf:"format"`

	// SkipValidation disables the validation stage.
	SkipValidation bool `koanf:"skip_validation"`

	// ContinueOnFail lets files with a fail verdict proceed downstream.
	ContinueOnFail bool `koanf:"continue_on_fail"`

	// IncludeReview retains values whose flags are classed for review.
	// The default favors completeness with an audit trail.
	IncludeReview bool `koanf:"include_review"`

	// AcceptedFlags overrides the numeric QC codes treated as accepted.
	AcceptedFlags []int `koanf:"accepted_flags"`

	// RejectedFlags overrides the numeric QC codes treated as rejected.
	RejectedFlags []int `koanf:"rejected_flags"`

	// MetricsAddr exposes a Prometheus endpoint while a batch runs.
	// Empty disables the listener.
	MetricsAddr string `koanf:"metrics_addr"`
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		LogLevel:      "info",
		Workers:       runtime.NumCPU(),
		Format:        "csv",
		IncludeReview: true,
		AcceptedFlags: []int{1, 2},
		RejectedFlags: []int{4, 9},
	}
}
