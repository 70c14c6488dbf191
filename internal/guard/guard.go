package guard

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nickthorpe71/legend/internal/feature"
)

// Policy defines the documented limits of a state directory.
type Policy struct {
	MaxFeatures      int      `json:"max_features"`
	MaxPayloadBytes  int      `json:"max_payload_bytes"`
	MaxConfigBytes   int      `json:"max_config_bytes"`
	AllowedFileGlobs []string `json:"allowed_file_globs"`
}

// DefaultPolicy provides the documented caps.
var DefaultPolicy = Policy{
	MaxFeatures:      feature.MaxFeatures,
	MaxPayloadBytes:  8 << 20,
	MaxConfigBytes:   5 << 10,
	AllowedFileGlobs: []string{"**"},
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
	Max     int
	Actual  int
}

// Err converts a capacity violation into a *feature.CapacityError.
func (v *Violation) Err() error {
	if v == nil {
		return nil
	}
	return &feature.CapacityError{Limit: v.Rule, Max: v.Max, Actual: v.Actual}
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckFeatureCount verifies the number of features is within the cap.
func (g *Guard) CheckFeatureCount(n int) *Violation {
	if n > g.policy.MaxFeatures {
		return &Violation{Rule: "feature count", Message: "Feature limit exceeded", Max: g.policy.MaxFeatures, Actual: n}
	}
	return nil
}

// CheckPayload verifies an encoded state payload is within the cap.
func (g *Guard) CheckPayload(size int) *Violation {
	if size > g.policy.MaxPayloadBytes {
		return &Violation{Rule: "state payload bytes", Message: "State payload too large", Max: g.policy.MaxPayloadBytes, Actual: size}
	}
	return nil
}

// CheckConfig verifies a configuration file is within the cap.
func (g *Guard) CheckConfig(size int) *Violation {
	if size > g.policy.MaxConfigBytes {
		return &Violation{Rule: "config bytes", Message: "Configuration file too large", Max: g.policy.MaxConfigBytes, Actual: size}
	}
	return nil
}

// CheckFile verifies that a files_involved entry is a repository-relative
// path inside the allowed globs. Violations are validation errors, not
// capacity errors, so the caller reports them with the feature id.
func (g *Guard) CheckFile(p string) *Violation {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return &Violation{Rule: "files_involved", Message: "path must be repository-relative: " + p}
	}

	clean := path.Clean(filepath.ToSlash(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return &Violation{Rule: "files_involved", Message: "path escapes the repository: " + p}
	}

	for _, pattern := range g.policy.AllowedFileGlobs {
		match, err := doublestar.Match(pattern, clean)
		if err == nil && match {
			return nil
		}
	}
	return &Violation{Rule: "files_involved", Message: "path not allowed by policy: " + p}
}

// CheckFiles runs CheckFile over every path of f and reports the first
// violation as a validation error.
func (g *Guard) CheckFiles(f *feature.Feature) error {
	for _, p := range f.FilesInvolved {
		if v := g.CheckFile(p); v != nil {
			return &feature.ValidationError{ID: f.ID, Field: "files_involved", Reason: v.Message}
		}
	}
	return nil
}
