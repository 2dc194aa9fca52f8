// Package config handles the optional YAML config file for tinyimg.
package config

import (
	"fmt"
	"time"

	"tinyimg/internal/lossless"
	"tinyimg/internal/lossy"
	"tinyimg/internal/processor"
	"tinyimg/internal/quantize"
)

// Config represents a tinyimg.yaml configuration file.
// All values are optional and act as defaults for optimize flags.
// CLI flags always override config values.
type Config struct {
	Level     *int     `yaml:"level"`
	Lossy     string   `yaml:"lossy"`
	Alpha     *bool    `yaml:"alpha"`
	Strip     string   `yaml:"strip"`
	Interlace string   `yaml:"interlace"`
	Fast      *bool    `yaml:"fast"`
	Timeout   Duration `yaml:"timeout,omitempty"`
	Preserve  *bool    `yaml:"preserve"`
	Verbose   *bool    `yaml:"verbose"`
	Recursive *bool    `yaml:"recursive"`
	Dither    string   `yaml:"dither"`
	Seed      *int64   `yaml:"seed"`
	Output    string   `yaml:"output"`
	Debug     bool     `yaml:"debug"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Apply overlays the values set in c onto opts.
func (c *Config) Apply(opts *processor.Options) error {
	if c.Level != nil {
		opts.Level = *c.Level
	}
	if c.Lossy != "" {
		b, err := lossy.ParseBudget(c.Lossy)
		if err != nil {
			return fmt.Errorf("lossy: %w", err)
		}
		opts.Lossy = b
	}
	if c.Alpha != nil {
		opts.Alpha = *c.Alpha
	}
	if c.Strip != "" {
		m, err := lossless.ParseStripMode(c.Strip)
		if err != nil {
			return err
		}
		opts.Strip = m
	}
	if c.Interlace != "" {
		m, err := lossless.ParseInterlace(c.Interlace)
		if err != nil {
			return err
		}
		opts.Interlace = m
	}
	if c.Fast != nil {
		opts.Fast = *c.Fast
	}
	if c.Timeout.Duration != 0 {
		opts.Timeout = c.Timeout.Duration
	}
	if c.Preserve != nil {
		opts.Preserve = *c.Preserve
	}
	if c.Verbose != nil {
		opts.Verbose = *c.Verbose
	}
	if c.Recursive != nil {
		opts.Recursive = *c.Recursive
	}
	if c.Dither != "" {
		d, err := quantize.ParseDither(c.Dither)
		if err != nil {
			return err
		}
		opts.Dither = d
	}
	if c.Seed != nil {
		opts.Seed = *c.Seed
	}
	return nil
}
