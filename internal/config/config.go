// Package config loads the run settings from the environment and the
// expected environment description from an optional YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Output selects how reports are printed
type Output string

const (
	OutputTable Output = "table"
	OutputJSON  Output = "json"
)

// Config holds the settings of one run. CLI flags override these values.
type Config struct {
	Profile      string        `envconfig:"CLOUDCHECK_PROFILE"`
	Region       string        `envconfig:"CLOUDCHECK_REGION" default:"eu-central-1"`
	Expectations string        `envconfig:"CLOUDCHECK_EXPECTATIONS"`
	LogLevel     string        `envconfig:"CLOUDCHECK_LOG" default:"info"`
	Output       Output        `envconfig:"CLOUDCHECK_OUTPUT" default:"table"`
	ProbeTimeout time.Duration `envconfig:"CLOUDCHECK_PROBE_TIMEOUT" default:"10s"`
}

// FromEnv reads Config from CLOUDCHECK_* variables. AWS credentials are not
// part of it; the SDK reads AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY itself.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no command can run with
func (c Config) Validate() error {
	switch c.Output {
	case OutputTable, OutputJSON:
	default:
		return fmt.Errorf("unsupported output %q (expected %q or %q)", c.Output, OutputTable, OutputJSON)
	}
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("probe timeout must not be negative, got %s", c.ProbeTimeout)
	}
	return nil
}
