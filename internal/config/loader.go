package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ARGOPIPE_CONFIG is set
//  3. env (prefix ARGOPIPE_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ARGOPIPE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: ARGOPIPE_WORKERS, ARGOPIPE_INCLUDE_REVIEW, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("ARGOPIPE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "argopipe_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.Format != "csv" && c.Format != "arrow" {
		return fmt.Errorf("%w: format must be csv or arrow, got %q", ErrInvalidConfig, c.Format)
	}
	for _, f := range append(append([]int{}, c.AcceptedFlags...), c.RejectedFlags...) {
		if f < 0 || f > 9 {
			return fmt.Errorf("%w: QC flag codes are 0..9, got %d", ErrInvalidConfig, f)
		}
	}
	return nil
}
