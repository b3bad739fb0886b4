package config

import (
	"errors"
	"fmt"

	"github.com/g0mb4/qutils"
)

// Config holds app configuration
type Config struct {
	// Format forces the archive format (pak, wad). Empty means detect on read
	// and infer from the archive extension on create.
	Format string `mapstructure:"format"`

	// FileMode is the extraction file policy (auto, truncate, create_only)
	FileMode string `mapstructure:"file_mode"`

	// Include and Exclude are path rules applied to entry names.
	// Includes are evaluated first; a non-empty include list acts as an allow-list.
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`

	MaxEntries int `mapstructure:"max_entries"`
	Workers    int `mapstructure:"workers"`

	HumanSizes      bool   `mapstructure:"human_sizes"`
	ContinueOnError bool   `mapstructure:"continue_on_error"`
	LogLevel        string `mapstructure:"log_level"`
	LogOutputDir    string `mapstructure:"log_output_dir"`
}

// Default returns the configuration used when no flag, env var, or file sets a key.
func Default() Config {
	return Config{
		FileMode:   string(qutils.ExtractFileModeAuto),
		MaxEntries: qutils.DefaultMaxEntries,
		Workers:    1,
		LogLevel:   "info",
	}
}

// Validate checks value ranges and enum fields.
func (c *Config) Validate() error {
	var errs []error

	if _, err := qutils.ParseFormat(c.Format); err != nil {
		errs = append(errs, fmt.Errorf("format: %w", err))
	}
	if _, err := qutils.ParseExtractFileMode(c.FileMode); err != nil {
		errs = append(errs, fmt.Errorf("file_mode: %w", err))
	}
	if c.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("max_entries: must not be negative, got %d", c.MaxEntries))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers: must not be negative, got %d", c.Workers))
	}

	return errors.Join(errs...)
}

// ArchiveFormat returns the parsed Format value.
func (c *Config) ArchiveFormat() qutils.Format {
	f, _ := qutils.ParseFormat(c.Format)
	return f
}

// ExtractFileMode returns the parsed extraction file mode.
func (c *Config) ExtractFileMode() qutils.ExtractFileMode {
	mode, err := qutils.ParseExtractFileMode(c.FileMode)
	if err != nil {
		return qutils.ExtractFileModeAuto
	}

	return mode
}
