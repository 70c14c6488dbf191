// Package config loads the optional config.yaml kept in the state directory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nickthorpe71/legend/internal/feature"
	"github.com/nickthorpe71/legend/internal/guard"
)

// FileName is the config file inside the state directory.
const FileName = "config.yaml"

// Config is the effective configuration of one state directory.
type Config struct {
	ProjectName string         `json:"project_name" yaml:"project_name"`
	Log         LogConfig      `json:"log" yaml:"log"`
	Discover    DiscoverConfig `json:"discover" yaml:"discover"`
	Journal     JournalConfig  `json:"journal" yaml:"journal"`
	Guard       GuardConfig    `json:"guard" yaml:"guard"`
}

type LogConfig struct {
	Format  string `json:"format" yaml:"format" validate:"oneof=console json"`
	Verbose bool   `json:"verbose" yaml:"verbose"`
}

// DiscoverConfig tunes the project scan behind `legend discover`.
type DiscoverConfig struct {
	SourceRoots []string `json:"source_roots" yaml:"source_roots" validate:"dive,required"`
	Skip        []string `json:"skip" yaml:"skip" validate:"dive,required"`
	MinFiles    int      `json:"min_files" yaml:"min_files" validate:"min=1"`
}

type JournalConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// GuardConfig narrows which paths features may reference.
type GuardConfig struct {
	AllowedFileGlobs []string `json:"allowed_file_globs" yaml:"allowed_file_globs" validate:"min=1,dive,required"`
}

// Default returns the configuration used when no config.yaml exists.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "console"},
		Discover: DiscoverConfig{
			SourceRoots: []string{"src", "lib", "app", "pkg", "internal", "cmd"},
			Skip:        []string{".git", ".legend", "node_modules", "target", "vendor", "build", "bin", ".idea", ".vscode"},
			MinFiles:    2,
		},
		Journal: JournalConfig{Enabled: true},
		Guard:   GuardConfig{AllowedFileGlobs: []string{"**"}},
	}
}

// Project returns the configured project name, falling back to the base
// name of root.
func (c Config) Project(root string) string {
	if strings.TrimSpace(c.ProjectName) != "" {
		return c.ProjectName
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	return filepath.Base(abs)
}

// Policy returns guard.DefaultPolicy narrowed by the configured globs.
func (c Config) Policy() guard.Policy {
	p := guard.DefaultPolicy
	if len(c.Guard.AllowedFileGlobs) > 0 {
		p.AllowedFileGlobs = append([]string{}, c.Guard.AllowedFileGlobs...)
	}
	return p
}

// ValidationResult represents the outcome of checking a Config.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

var validate = validator.New()

// Validate checks the Config for errors that make it unusable and for
// settings that are legal but probably unintended.
func (c Config) Validate() ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				res.Errors = append(res.Errors, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			res.Errors = append(res.Errors, err.Error())
		}
		res.Valid = false
	}

	if len(c.Discover.SourceRoots) == 0 {
		res.Warnings = append(res.Warnings, "discover.source_roots is empty; discover will suggest no features")
	}
	if !c.Journal.Enabled {
		res.Warnings = append(res.Warnings, "journal disabled; `legend history` will be empty")
	}

	return res
}

// Load reads dir/config.yaml on top of Default. A missing file is not an
// error. A file over the guard's size cap is reported as feature.ErrCapacity;
// unknown keys and invalid values as feature.ErrValidation.
func Load(dir string, g *guard.Guard) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if v := g.CheckConfig(len(data)); v != nil {
		return cfg, v.Err()
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Default(), &feature.ValidationError{Field: FileName, Reason: err.Error()}
	}

	if res := cfg.Validate(); !res.Valid {
		return Default(), &feature.ValidationError{Field: FileName, Reason: strings.Join(res.Errors, "; ")}
	}
	return cfg, nil
}

// Save writes cfg to dir/config.yaml, creating dir if needed.
func Save(dir string, cfg Config, g *guard.Guard) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if v := g.CheckConfig(len(data)); v != nil {
		return v.Err()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}
