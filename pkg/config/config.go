// Package config loads engine settings from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/lsm"
	"github.com/dd0wney/cluso-kv/pkg/metrics"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report fields by their YAML key so errors match the file being edited
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Config is the on-disk engine configuration
type Config struct {
	DataDir        string `yaml:"data_dir" validate:"required"`
	FlushThreshold int    `yaml:"flush_threshold" validate:"min=1"`
	SegmentSize    int    `yaml:"segment_size" validate:"min=1,max=4294967295"`
	SyncWrites     bool   `yaml:"sync_writes"`
	UseMmap        bool   `yaml:"use_mmap"`
	LogLevel       string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

// Default returns the configuration used when no file is given
func Default(dataDir string) Config {
	return Config{
		DataDir:        dataDir,
		FlushThreshold: lsm.DefaultFlushThreshold,
		SegmentSize:    lsm.DefaultSegmentSize,
		SyncWrites:     true,
		LogLevel:       "info",
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
// Keys missing from the file keep their default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of the defaults and validates the result
func Parse(data []byte) (Config, error) {
	cfg := Default("")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// Logger builds a JSON logger on stderr at the configured level
func (c Config) Logger() logging.Logger {
	level := logging.InfoLevel
	if c.LogLevel != "" {
		level = logging.ParseLevel(c.LogLevel)
	}
	return logging.NewJSONLogger(os.Stderr, level)
}

// EngineOptions converts the configuration into engine options
func (c Config) EngineOptions(logger logging.Logger, registry *metrics.Registry) lsm.Options {
	opts := lsm.DefaultOptions(c.DataDir)
	opts.FlushThreshold = c.FlushThreshold
	opts.SegmentSize = c.SegmentSize
	opts.SyncWrites = c.SyncWrites
	opts.UseMmap = c.UseMmap
	opts.Logger = logger
	opts.Metrics = registry
	return opts
}

// formatValidationError turns the first validator failure into a readable
// error naming the YAML field
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}

	e := validationErrs[0]
	field := e.Field()
	switch e.Tag() {
	case "required":
		return fmt.Errorf("config: %s is required", field)
	case "min":
		return fmt.Errorf("config: %s must be at least %s", field, e.Param())
	case "max":
		return fmt.Errorf("config: %s must not exceed %s", field, e.Param())
	case "oneof":
		return fmt.Errorf("config: %s must be one of [%s]", field, e.Param())
	default:
		return fmt.Errorf("config: %s failed %s validation", field, e.Tag())
	}
}
