package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/picoscan/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidJSON(t *testing.T) {
	content := `{
		"rules": "pico.yaml",
		"extensions": [".smali", ".xml"],
		"workers": 4,
		"fail_on": "critical",
		"verbose": true
	}`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "pico.yaml", cfg.Rules)
	assert.Equal(t, []string{".smali", ".xml"}, cfg.Extensions)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "critical", cfg.FailOn)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	content := `{ invalid json }`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestValidate_FieldRules(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"negative workers", Config{Workers: -1}, "'workers' failed 'gte=0'"},
		{"too many workers", Config{Workers: 1000}, "'workers' failed 'lte=256'"},
		{"extension without dot", Config{Extensions: []string{"smali"}}, "extensions[0]"},
		{"skip dir with slash", Config{SkipDirs: []string{"a/b"}}, "skip_dirs[0]"},
		{"unknown fail_on", Config{FailOn: "fatal"}, "fail_on"},
		{"unknown log level", Config{LogLevel: "loud"}, "log_level"},
		{"negative binary cap", Config{MaxBinaryBytes: -5}, "max_binary_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config error")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Paths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pico.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0644))

	assert.NoError(t, (&Config{In: dir, Rules: file}).Validate())

	err := (&Config{In: filepath.Join(dir, "nope")}).Validate()
	assert.ErrorContains(t, err, "input directory not found")

	err = (&Config{In: file}).Validate()
	assert.ErrorContains(t, err, "not a directory")

	err = (&Config{Rules: filepath.Join(dir, "missing.yaml")}).Validate()
	assert.ErrorContains(t, err, "rule database not found")
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Workers = 8
	cfg.Extensions = []string{".smali"}

	assert.NoError(t, cfg.Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	defaults := Defaults()
	defaults.Rules = "default.yaml"
	defaults.Workers = 2

	partial := Config{
		In:       "/apps/demo",
		FailOn:   "critical",
		SkipDirs: []string{"lib"},
	}

	merged := partial.MergeWithDefaults(defaults)

	assert.Equal(t, "/apps/demo", merged.In)
	assert.Equal(t, "critical", merged.FailOn)
	assert.Equal(t, []string{"lib"}, merged.SkipDirs)

	assert.Equal(t, "default.yaml", merged.Rules)
	assert.Equal(t, 2, merged.Workers)
	assert.Equal(t, 4, merged.MinRunLength)
	assert.Equal(t, "info", merged.LogLevel)
}

func TestMergeWithDefaults_EmptyDefaults(t *testing.T) {
	cfg := Config{Rules: "pico.json", Workers: 3}

	merged := cfg.MergeWithDefaults(Config{})

	assert.Equal(t, "pico.json", merged.Rules)
	assert.Equal(t, 3, merged.Workers)
	assert.Empty(t, merged.SkipDirs)
}

func TestCorpusOptions(t *testing.T) {
	cfg := Defaults()
	cfg.Extensions = []string{".smali"}

	opts := cfg.CorpusOptions()
	assert.Equal(t, []string{".smali"}, opts.Extensions)
	assert.Equal(t, cfg.SkipDirs, opts.SkipDirs)
	assert.Equal(t, int64(2_000_000), opts.MaxBinaryBytes)
}

func TestFailThreshold(t *testing.T) {
	sev, ok := (&Config{}).FailThreshold()
	assert.True(t, ok)
	assert.Equal(t, types.SeverityInfo, sev)

	sev, ok = (&Config{FailOn: "critical"}).FailThreshold()
	assert.True(t, ok)
	assert.Equal(t, types.SeverityCritical, sev)

	_, ok = (&Config{FailOn: "never"}).FailThreshold()
	assert.False(t, ok)
}
