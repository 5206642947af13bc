// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// Config represents the configuration for loopscan
type Config struct {
	// General settings
	Version     string `yaml:"version" json:"version"`
	ProjectName string `yaml:"project_name,omitempty" json:"project_name,omitempty"`

	// Compiler settings handed to the parser
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// File patterns
	Files FilesConfig `yaml:"files" json:"files"`

	// Analysis settings
	Analysis AnalysisConfig `yaml:"analysis" json:"analysis"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

type ScanConfig struct {
	// C++ standard passed as -std=
	CppStandard string   `yaml:"cpp_standard" json:"cpp_standard"`
	IncludeDirs []string `yaml:"include_dirs" json:"include_dirs"`
	ExtraFlags  []string `yaml:"extra_flags" json:"extra_flags"`
}

type FilesConfig struct {
	Extensions []string `yaml:"extensions" json:"extensions"`

	// Include patterns
	Include []string `yaml:"include" json:"include"`

	// Exclude patterns
	Exclude []string `yaml:"exclude" json:"exclude"`

	// Directory names skipped in addition to the built-in list
	ExcludeDirs []string `yaml:"exclude_dirs" json:"exclude_dirs"`

	// Whether to follow symlinks
	FollowSymlinks bool `yaml:"follow_symlinks" json:"follow_symlinks"`

	// Max file size (in KB), 0 for no limit
	MaxFileSize int `yaml:"max_file_size" json:"max_file_size"`
}

type AnalysisConfig struct {
	// Parallel analysis
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`

	// Files between checkpoints
	CheckpointFrequency int `yaml:"checkpoint_frequency" json:"checkpoint_frequency"`

	// Keep the checkpoint after a successful scan
	KeepCheckpoint bool `yaml:"keep_checkpoint" json:"keep_checkpoint"`
}

type OutputConfig struct {
	// Report printed after a scan
	Format string `yaml:"format" json:"format"`

	// Analysis document path
	OutputFile string `yaml:"output_file" json:"output_file"`

	// Colorized output
	Colors bool `yaml:"colors" json:"colors"`

	// Verbosity level
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Rows in ranked report tables
	TopN int `yaml:"top_n" json:"top_n"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Scan: ScanConfig{
			CppStandard: "c++17",
			IncludeDirs: []string{},
			ExtraFlags:  []string{},
		},
		Files: FilesConfig{
			Extensions:     []string{".c", ".cpp", ".cc", ".cxx", ".h", ".hpp", ".hxx"},
			Include:        []string{},
			Exclude:        []string{},
			ExcludeDirs:    []string{},
			FollowSymlinks: false,
			MaxFileSize:    0,
		},
		Analysis: AnalysisConfig{
			MaxWorkers:          1,
			CheckpointFrequency: 50,
			KeepCheckpoint:      false,
		},
		Output: OutputConfig{
			Format:     "console",
			OutputFile: "loop_analysis.json",
			Colors:     true,
			Verbose:    false,
			TopN:       10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file or returns default
func LoadConfig(configPath string) (*Config, error) {
	// If no config path provided, look for default config files
	if configPath == "" {
		configPath = findConfigFile()
	}

	// If still no config found, return default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config := DefaultConfig() // Start with defaults

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file %s: %w", ErrInvalid, configPath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// findConfigFile looks for config files in common locations
func findConfigFile() string {
	possiblePaths := []string{
		".loopscan.yml",
		".loopscan.yaml",
		"loopscan.yml",
		"loopscan.yaml",
		".config/loopscan.yml",
		".config/loopscan.yaml",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

var (
	validStandards  = []string{"c++11", "c++14", "c++17", "c++20"}
	validFormats    = []string{"console", "json", "markdown"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !slices.Contains(validStandards, c.Scan.CppStandard) {
		return fmt.Errorf("%w: unsupported cpp_standard %q (valid: %v)", ErrInvalid, c.Scan.CppStandard, validStandards)
	}

	if !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("%w: invalid output format: %s (valid: %v)", ErrInvalid, c.Output.Format, validFormats)
	}
	if c.Output.OutputFile == "" {
		return fmt.Errorf("%w: output_file must not be empty", ErrInvalid)
	}

	if c.Analysis.MaxWorkers < 1 {
		return fmt.Errorf("%w: max_workers must be at least 1", ErrInvalid)
	}
	if c.Analysis.CheckpointFrequency < 1 {
		return fmt.Errorf("%w: checkpoint_frequency must be at least 1", ErrInvalid)
	}

	if len(c.Files.Extensions) == 0 {
		return fmt.Errorf("%w: at least one file extension is required", ErrInvalid)
	}
	for _, ext := range c.Files.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: extension %q must start with a dot", ErrInvalid, ext)
		}
	}
	if c.Files.MaxFileSize < 0 {
		return fmt.Errorf("%w: max_file_size must not be negative", ErrInvalid)
	}

	if !slices.Contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("%w: invalid log level %q (valid: %v)", ErrInvalid, c.Logging.Level, validLogLevels)
	}
	if !slices.Contains(validLogFormats, c.Logging.Format) {
		return fmt.Errorf("%w: invalid log format %q (valid: %v)", ErrInvalid, c.Logging.Format, validLogFormats)
	}

	return nil
}

// GetCompilerFlags returns the flags handed to the parser for every file:
// the language standard, include directories that exist, and extra flags.
func (c *Config) GetCompilerFlags() []string {
	flags := []string{"-std=" + c.Scan.CppStandard}
	for _, dir := range c.Scan.IncludeDirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			flags = append(flags, "-I"+dir)
		}
	}
	return append(flags, c.Scan.ExtraFlags...)
}

// FlagsForFile adds -x c++ for headers so they are parsed as C++.
func (c *Config) FlagsForFile(path string) []string {
	flags := c.GetCompilerFlags()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".h", ".hpp", ".hxx", ".hh":
		flags = append(flags, "-x", "c++")
	}
	return flags
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateConfig creates a sample configuration file
func GenerateConfig(configPath string) error {
	config := DefaultConfig()
	return config.SaveConfig(configPath)
}
