package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "c++17", cfg.Scan.CppStandard)
	assert.Equal(t, "loop_analysis.json", cfg.Output.OutputFile)
	assert.Equal(t, 50, cfg.Analysis.CheckpointFrequency)
	assert.Contains(t, cfg.Files.Extensions, ".hpp")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"standard", func(c *Config) { c.Scan.CppStandard = "c++98" }},
		{"format", func(c *Config) { c.Output.Format = "html" }},
		{"output file", func(c *Config) { c.Output.OutputFile = "" }},
		{"workers", func(c *Config) { c.Analysis.MaxWorkers = 0 }},
		{"checkpoint frequency", func(c *Config) { c.Analysis.CheckpointFrequency = 0 }},
		{"no extensions", func(c *Config) { c.Files.Extensions = nil }},
		{"extension without dot", func(c *Config) { c.Files.Extensions = []string{"cpp"} }},
		{"negative size", func(c *Config) { c.Files.MaxFileSize = -1 }},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loopscan.yml")
	yml := `
scan:
  cpp_standard: c++20
  include_dirs: [include]
analysis:
  max_workers: 4
output:
  format: markdown
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "c++20", cfg.Scan.CppStandard)
	assert.Equal(t, []string{"include"}, cfg.Scan.IncludeDirs)
	assert.Equal(t, 4, cfg.Analysis.MaxWorkers)
	assert.Equal(t, "markdown", cfg.Output.Format)
	// Unset keys keep their defaults.
	assert.Equal(t, 50, cfg.Analysis.CheckpointFrequency)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)

	broken := filepath.Join(dir, "broken.yml")
	require.NoError(t, os.WriteFile(broken, []byte("scan: [unclosed"), 0644))
	_, err = LoadConfig(broken)
	assert.ErrorIs(t, err, ErrInvalid)

	invalid := filepath.Join(dir, "invalid.yml")
	require.NoError(t, os.WriteFile(invalid, []byte("analysis:\n  max_workers: 0\n"), 0644))
	_, err = LoadConfig(invalid)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestGenerateAndSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".loopscan.yml")
	require.NoError(t, GenerateConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg.Output.TopN = 3
	require.NoError(t, cfg.SaveConfig(path))
	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Output.TopN)
}

func TestCompilerFlags(t *testing.T) {
	include := t.TempDir()
	cfg := DefaultConfig()
	cfg.Scan.IncludeDirs = []string{include, filepath.Join(include, "missing")}
	cfg.Scan.ExtraFlags = []string{"-DNDEBUG"}

	assert.Equal(t, []string{"-std=c++17", "-I" + include, "-DNDEBUG"}, cfg.GetCompilerFlags())
	assert.Equal(t, cfg.GetCompilerFlags(), cfg.FlagsForFile("src/main.cpp"))
	assert.Equal(t, []string{"-std=c++17", "-I" + include, "-DNDEBUG", "-x", "c++"}, cfg.FlagsForFile("include/matrix.H"))
}
