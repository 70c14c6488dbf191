// Package discover scans a project tree and suggests features from its
// directory layout, as a starting point for a fresh state.
package discover

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nickthorpe71/legend/internal/merge"
)

// Options controls a scan.
type Options struct {
	// SourceRoots are top-level directories whose subdirectories become
	// suggested features.
	SourceRoots []string
	// Skip holds doublestar patterns matched against both the base name and
	// the root-relative path of every directory and file.
	Skip []string
	// MinFiles is the number of files a subdirectory needs to be suggested.
	MinFiles int
}

// Report is the result of a scan.
type Report struct {
	Root              string             `json:"root"`
	Languages         map[string]int     `json:"languages"`
	Directories       []string           `json:"directories"`
	PotentialFeatures []SuggestedFeature `json:"potential_features"`
	TotalFiles        int                `json:"total_files"`
}

// SuggestedFeature is a feature inferred from one source subdirectory.
type SuggestedFeature struct {
	ID     string   `json:"suggested_id"`
	Name   string   `json:"suggested_name"`
	Domain string   `json:"suggested_domain"`
	Files  []string `json:"files"`
}

// Scan walks root and builds a Report. Paths in the report are relative to
// root and use forward slashes.
func Scan(ctx context.Context, root string, opts Options) (*Report, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	info, err := filepath.EvalSymlinks(abs)
	if err == nil {
		abs = info
	}

	rep := &Report{
		Root:              abs,
		Languages:         make(map[string]int),
		Directories:       []string{},
		PotentialFeatures: []SuggestedFeature{},
	}
	var files []string

	walkErr := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == abs {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if skipped(opts.Skip, d.Name(), rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if !strings.Contains(rel, "/") && !strings.HasPrefix(d.Name(), ".") {
				rep.Directories = append(rep.Directories, rel)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if ext := strings.ToLower(strings.TrimPrefix(path.Ext(d.Name()), ".")); ext != "" {
			rep.Languages[ext]++
		}
		files = append(files, rel)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scanning %s: %w", abs, walkErr)
	}

	sort.Strings(files)
	sort.Strings(rep.Directories)
	rep.TotalFiles = len(files)
	rep.PotentialFeatures = suggest(files, opts)
	return rep, nil
}

func skipped(patterns []string, name, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// suggest groups files by their first directory under a source root.
func suggest(files []string, opts Options) []SuggestedFeature {
	minFiles := opts.MinFiles
	if minFiles < 1 {
		minFiles = 1
	}

	byID := make(map[string]*SuggestedFeature)
	var order []string
	for _, sourceRoot := range opts.SourceRoots {
		prefix := strings.Trim(filepath.ToSlash(sourceRoot), "/") + "/"
		groups := make(map[string][]string)
		for _, f := range files {
			rest, ok := strings.CutPrefix(f, prefix)
			if !ok {
				continue
			}
			dir, _, nested := strings.Cut(rest, "/")
			if !nested || strings.HasPrefix(dir, ".") {
				continue
			}
			groups[dir] = append(groups[dir], f)
		}

		for dir, dirFiles := range groups {
			if len(dirFiles) < minFiles {
				continue
			}
			if existing, ok := byID[dir]; ok {
				existing.Files = append(existing.Files, dirFiles...)
				continue
			}
			byID[dir] = &SuggestedFeature{
				ID:     dir,
				Name:   TitleCase(dir),
				Domain: InferDomain(dir),
				Files:  dirFiles,
			}
			order = append(order, dir)
		}
	}

	sort.Strings(order)
	out := make([]SuggestedFeature, 0, len(order))
	for _, id := range order {
		sf := byID[id]
		sort.Strings(sf.Files)
		out = append(out, *sf)
	}
	return out
}

var domainKeywords = []struct {
	domain   string
	keywords []string
}{
	{"security", []string{"auth", "login", "session"}},
	{"api", []string{"api", "routes", "endpoints"}},
	{"storage", []string{"db", "storage", "models", "schema"}},
	{"ui", []string{"ui", "components", "views", "pages"}},
	{"testing", []string{"test", "spec"}},
}

// InferDomain guesses a domain from a directory name, falling back to the
// lower-cased name itself.
func InferDomain(dir string) string {
	name := strings.ToLower(dir)
	for _, group := range domainKeywords {
		for _, k := range group.keywords {
			if strings.Contains(name, k) {
				return group.domain
			}
		}
	}
	return name
}

// TitleCase turns "user_profile" or "user-profile" into "User Profile".
func TitleCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	for i, part := range parts {
		r, size := utf8.DecodeRuneInString(part)
		parts[i] = string(unicode.ToUpper(r)) + part[size:]
	}
	return strings.Join(parts, " ")
}

// LanguageSummary lists the five most common extensions as "go (12), md (3)".
func (r *Report) LanguageSummary() string {
	if len(r.Languages) == 0 {
		return "none detected"
	}
	exts := make([]string, 0, len(r.Languages))
	for ext := range r.Languages {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		if r.Languages[exts[i]] != r.Languages[exts[j]] {
			return r.Languages[exts[i]] > r.Languages[exts[j]]
		}
		return exts[i] < exts[j]
	})
	if len(exts) > 5 {
		exts = exts[:5]
	}
	parts := make([]string, len(exts))
	for i, ext := range exts {
		parts[i] = fmt.Sprintf("%s (%d)", ext, r.Languages[ext])
	}
	return strings.Join(parts, ", ")
}

// Update turns the suggestions into an update document that creates one
// Pending feature per suggestion.
func (r *Report) Update() merge.Update {
	u := merge.Update{Features: make([]merge.Patch, 0, len(r.PotentialFeatures))}
	for _, sf := range r.PotentialFeatures {
		u.Features = append(u.Features, merge.Patch{
			ID:            sf.ID,
			Name:          merge.Some(sf.Name),
			Domain:        merge.Some(sf.Domain),
			Description:   merge.Some(fmt.Sprintf("Discovered from %s (%d files)", commonDir(sf.Files), len(sf.Files))),
			Tags:          merge.Some([]string{"discovered"}),
			FilesInvolved: merge.Some(append([]string{}, sf.Files...)),
		})
	}
	return u
}

// commonDir returns the directory shared by the first file, two levels deep.
func commonDir(files []string) string {
	if len(files) == 0 {
		return "."
	}
	parts := strings.SplitN(files[0], "/", 3)
	if len(parts) < 3 {
		return path.Dir(files[0])
	}
	return parts[0] + "/" + parts[1]
}
