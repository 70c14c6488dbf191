package discover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickthorpe71/legend/internal/merge"
)

func touch(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
}

func defaultOptions() Options {
	return Options{
		SourceRoots: []string{"src", "lib"},
		Skip:        []string{".git", ".legend", "node_modules", "**/*.log"},
		MinFiles:    2,
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"README.md",
		"src/auth/login.go",
		"src/auth/token.go",
		"src/billing/invoice.go",
		"src/user_profile/view.tsx",
		"src/user_profile/edit.tsx",
		"lib/auth/hash.go",
		"lib/auth/salt.go",
		"node_modules/left-pad/index.js",
		".git/HEAD",
		"src/auth/debug.log",
		"docs/guide.md",
	)

	rep, err := Scan(context.Background(), root, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 9, rep.TotalFiles)
	assert.Equal(t, map[string]int{"md": 2, "go": 5, "tsx": 2}, rep.Languages)
	assert.Equal(t, []string{"docs", "lib", "src"}, rep.Directories)

	require.Len(t, rep.PotentialFeatures, 2)

	auth := rep.PotentialFeatures[0]
	assert.Equal(t, "auth", auth.ID)
	assert.Equal(t, "Auth", auth.Name)
	assert.Equal(t, "security", auth.Domain)
	assert.Equal(t, []string{"lib/auth/hash.go", "lib/auth/salt.go", "src/auth/login.go", "src/auth/token.go"}, auth.Files)

	profile := rep.PotentialFeatures[1]
	assert.Equal(t, "user_profile", profile.ID)
	assert.Equal(t, "User Profile", profile.Name)
	assert.Equal(t, "user_profile", profile.Domain)
}

func TestScan_Cancelled(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "src/a/x.go", "src/a/y.go")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scan(ctx, root, defaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInferDomain(t *testing.T) {
	cases := map[string]string{
		"auth":       "security",
		"Sessions":   "security",
		"api_routes": "api",
		"models":     "storage",
		"components": "ui",
		"e2e_tests":  "testing",
		"Billing":    "billing",
	}
	for in, want := range cases {
		assert.Equal(t, want, InferDomain(in), in)
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "User Profile", TitleCase("user_profile"))
	assert.Equal(t, "Multi Word Name", TitleCase("multi-word__name"))
	assert.Equal(t, "Ümlaut", TitleCase("ümlaut"))
	assert.Equal(t, "", TitleCase(""))
}

func TestReport_LanguageSummary(t *testing.T) {
	assert.Equal(t, "none detected", (&Report{}).LanguageSummary())

	rep := &Report{Languages: map[string]int{"go": 5, "md": 2, "ts": 2, "a": 1, "b": 1, "c": 1}}
	assert.Equal(t, "go (5), md (2), ts (2), a (1), b (1)", rep.LanguageSummary())
}

func TestReport_Update(t *testing.T) {
	rep := &Report{PotentialFeatures: []SuggestedFeature{
		{ID: "auth", Name: "Auth", Domain: "security", Files: []string{"src/auth/a.go", "src/auth/b.go"}},
	}}

	u := rep.Update()
	require.Len(t, u.Features, 1)
	p := u.Features[0]
	assert.Equal(t, "auth", p.ID)
	assert.Equal(t, merge.Some("Auth"), p.Name)
	assert.Equal(t, merge.Some("security"), p.Domain)
	assert.Equal(t, "Discovered from src/auth (2 files)", p.Description.Value)
	assert.Equal(t, []string{"src/auth/a.go", "src/auth/b.go"}, p.FilesInvolved.Value)
	assert.False(t, p.Status.Set)
}
