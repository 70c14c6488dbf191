package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickthorpe71/legend/internal/feature"
	"github.com/nickthorpe71/legend/internal/guard"
)

func defaultGuard() *guard.Guard {
	return guard.New(guard.DefaultPolicy)
}

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
}

func TestLoad_MissingUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), defaultGuard())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
project_name: shop
log:
  format: json
discover:
  min_files: 3
journal:
  enabled: false
`)

	cfg, err := Load(dir, defaultGuard())
	require.NoError(t, err)
	assert.Equal(t, "shop", cfg.ProjectName)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Discover.MinFiles)
	assert.False(t, cfg.Journal.Enabled)
	// untouched sections keep their defaults
	assert.Equal(t, Default().Discover.SourceRoots, cfg.Discover.SourceRoots)
}

func TestLoad_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	cfg, err := Load(dir, defaultGuard())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "colour: red\n",
		"bad format":    "log:\n  format: xml\n",
		"zero minfiles": "discover:\n  min_files: 0\n",
		"no globs":      "guard:\n  allowed_file_globs: []\n",
		"syntax":        "log: [unterminated\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, body)

			_, err := Load(dir, defaultGuard())
			require.Error(t, err)
			assert.True(t, errors.Is(err, feature.ErrValidation), "got %v", err)
		})
	}
}

func TestLoad_TooLarge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "project_name: x\n# "+strings.Repeat("x", 6<<10)+"\n")

	_, err := Load(dir, defaultGuard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, feature.ErrCapacity))
}

func TestSave_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".legend")
	cfg := Default()
	cfg.ProjectName = "shop"
	cfg.Guard.AllowedFileGlobs = []string{"src/**", "docs/*.md"}

	require.NoError(t, Save(dir, cfg, defaultGuard()))

	loaded, err := Load(dir, defaultGuard())
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_Project(t *testing.T) {
	root := filepath.Join(t.TempDir(), "my-app")
	assert.Equal(t, "my-app", Default().Project(root))

	cfg := Default()
	cfg.ProjectName = "named"
	assert.Equal(t, "named", cfg.Project(root))
}

func TestConfig_Policy(t *testing.T) {
	cfg := Default()
	cfg.Guard.AllowedFileGlobs = []string{"src/**"}

	p := cfg.Policy()
	assert.Equal(t, []string{"src/**"}, p.AllowedFileGlobs)
	assert.Equal(t, guard.DefaultPolicy.MaxFeatures, p.MaxFeatures)
}

func TestConfig_ValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Discover.SourceRoots = nil
	cfg.Journal.Enabled = false

	res := cfg.Validate()
	assert.True(t, res.Valid)
	assert.Len(t, res.Warnings, 2)
	assert.Empty(t, res.Errors)
}
