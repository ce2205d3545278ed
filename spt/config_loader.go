package spt

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default engine parameters
const (
	DefaultDecimalPrecision = 3
	DefaultMinPoints        = 0
	DefaultMinLength        = 0.0
	DefaultMaxLength        = 100.0
	DefaultFrameRate        = 1.0
	DefaultMaxMSDLag        = 10
)

// Default output file names
const (
	DefaultAggregatedFile = "aggregated.csv"
	DefaultMSDFile        = "msd.csv"
	DefaultWorkbookFile   = "msd.xlsx"
	DefaultTrajectoryFile = "trajectories.json"
)

// DefaultConfig returns a configuration with the default thresholds
func DefaultConfig() *Config {
	return &Config{
		DecimalPrecision: DefaultDecimalPrecision,
		MinPoints:        DefaultMinPoints,
		MinLength:        DefaultMinLength,
		MaxLength:        DefaultMaxLength,
		FrameRate:        DefaultFrameRate,
		MaxMSDLag:        DefaultMaxMSDLag,
		Output: OutputConfig{
			AggregatedFile: DefaultAggregatedFile,
			MSDFile:        DefaultMSDFile,
		},
	}
}

// LoadConfig loads the configuration from a YAML file. Fields absent from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the thresholds for consistency
func (c *Config) Validate() error {
	if c.DecimalPrecision < 0 || c.DecimalPrecision > 15 {
		return fmt.Errorf("decimalPrecision must be between 0 and 15, got %d", c.DecimalPrecision)
	}
	if c.MinPoints < 0 {
		return fmt.Errorf("minPoints must not be negative, got %d", c.MinPoints)
	}
	if c.MinLength < 0 {
		return fmt.Errorf("minLength must not be negative, got %g", c.MinLength)
	}
	if c.MaxLength < c.MinLength {
		return fmt.Errorf("maxLength (%g) is below minLength (%g)", c.MaxLength, c.MinLength)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frameRate must be positive, got %g", c.FrameRate)
	}
	if c.MaxMSDLag < 1 {
		return fmt.Errorf("maxMsdLag must be at least 1, got %d", c.MaxMSDLag)
	}
	return nil
}

// OutputPath resolves an output file name against the output directory.
// An empty name yields an empty path, which disables that output.
func (c *Config) OutputPath(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) || c.Output.Dir == "" {
		return name
	}
	return filepath.Join(c.Output.Dir, name)
}
