// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/picoscan/internal/corpus"
	"github.com/jonathan/picoscan/internal/types"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Paths
	In    string `json:"in,omitempty"`    // Decompiled application root
	Rules string `json:"rules,omitempty"` // Rule database (JSON or YAML)
	Out   string `json:"out,omitempty"`   // Scan result JSON; stdout when empty
	Sarif string `json:"sarif,omitempty"` // Optional SARIF report path

	// Corpus
	Extensions     []string `json:"extensions,omitempty" validate:"dive,startswith=."`
	SkipDirs       []string `json:"skip_dirs,omitempty" validate:"dive,required,excludesall=/"`
	MinRunLength   int      `json:"min_run_length,omitempty" validate:"gte=0,lte=64"`
	MaxBinaryBytes int64    `json:"max_binary_bytes,omitempty" validate:"gte=0"`

	// Behavior
	Workers     int    `json:"workers,omitempty" validate:"gte=0,lte=256"`                              // Concurrent SDK evaluations; 0 means GOMAXPROCS
	FailOn      string `json:"fail_on,omitempty" validate:"omitempty,oneof=info warning critical never"` // Lowest severity that makes scan exit non-zero
	LogLevel    string `json:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn error"`
	LogJSON     bool   `json:"log_json,omitempty"`
	Verbose     bool   `json:"verbose,omitempty"`      // Print the scan summary box
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL for scan history
}

// Defaults returns the configuration used when neither a file nor flags set a value.
func Defaults() Config {
	opts := corpus.DefaultOptions()
	return Config{
		SkipDirs:       opts.SkipDirs,
		MinRunLength:   opts.MinRunLength,
		MaxBinaryBytes: opts.MaxBinaryBytes,
		FailOn:         string(types.SeverityInfo),
		LogLevel:       "info",
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration has valid values.
// Required inputs are checked by the CLI after merging flags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Param() != "" {
				return fmt.Errorf("config error: '%s' failed '%s=%s'", fe.Field(), fe.Tag(), fe.Param())
			}
			return fmt.Errorf("config error: '%s' failed '%s'", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.In != "" {
		info, err := os.Stat(c.In)
		if err != nil {
			return fmt.Errorf("config error: input directory not found: %s", c.In)
		}
		if !info.IsDir() {
			return fmt.Errorf("config error: input is not a directory: %s", c.In)
		}
	}
	if c.Rules != "" {
		if _, err := os.Stat(c.Rules); os.IsNotExist(err) {
			return fmt.Errorf("config error: rule database not found: %s", c.Rules)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.In == "" {
		result.In = defaults.In
	}
	if result.Rules == "" {
		result.Rules = defaults.Rules
	}
	if result.Out == "" {
		result.Out = defaults.Out
	}
	if result.Sarif == "" {
		result.Sarif = defaults.Sarif
	}
	if result.FailOn == "" {
		result.FailOn = defaults.FailOn
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	if len(result.Extensions) == 0 {
		result.Extensions = defaults.Extensions
	}
	if len(result.SkipDirs) == 0 {
		result.SkipDirs = defaults.SkipDirs
	}

	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.MinRunLength == 0 {
		result.MinRunLength = defaults.MinRunLength
	}
	if result.MaxBinaryBytes == 0 {
		result.MaxBinaryBytes = defaults.MaxBinaryBytes
	}

	// Bools cannot distinguish unset from false, so CLI flags always win.

	return result
}

// CorpusOptions returns the corpus build options described by the configuration.
func (c *Config) CorpusOptions() corpus.Options {
	return corpus.Options{
		Extensions:     c.Extensions,
		SkipDirs:       c.SkipDirs,
		MinRunLength:   c.MinRunLength,
		MaxBinaryBytes: c.MaxBinaryBytes,
	}
}

// FailThreshold reports the lowest severity that fails a scan, and false when
// findings never fail it.
func (c *Config) FailThreshold() (types.Severity, bool) {
	switch c.FailOn {
	case "never":
		return "", false
	case "":
		return types.SeverityInfo, true
	default:
		return types.Severity(c.FailOn), true
	}
}
