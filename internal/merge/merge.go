// Package merge applies update documents to a feature.State. An update is
// applied to a copy and returned whole, or rejected whole; the input State is
// never modified.
package merge

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/nickthorpe71/legend/internal/feature"
	"github.com/nickthorpe71/legend/internal/recency"
)

// Report lists the ids touched by one Apply, each in submission order.
type Report struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}

// Touched returns the number of features the update changed.
func (r Report) Touched() int {
	return len(r.Created) + len(r.Updated) + len(r.Removed)
}

// Check is run against every created or updated feature after its fields
// are merged. A non-nil error aborts the whole update.
type Check func(f *feature.Feature) error

// Apply merges u into a copy of s at time now and returns the new State.
//
// Removals are processed first and win over any patch naming the same id.
// A patch for an unknown id creates the feature and must carry name, domain
// and description. A patch for a known id overwrites the scalar fields it
// carries and unions tags and files_involved. Every feature is rescored at
// now. On error s is untouched and the returned State is nil.
func Apply(s *feature.State, u Update, now int64, checks ...Check) (*feature.State, Report, error) {
	out := s.Clone()
	var rep Report

	removed := make(map[string]struct{}, len(u.RemoveFeatures))
	for _, id := range u.RemoveFeatures {
		removed[id] = struct{}{}
	}
	if len(removed) > 0 {
		kept := out.Features[:0]
		for _, f := range out.Features {
			if _, ok := removed[f.ID]; ok {
				rep.Removed = append(rep.Removed, f.ID)
				continue
			}
			kept = append(kept, f)
		}
		out.Features = kept
	}

	positions := make(map[string]int, len(out.Features))
	for i, f := range out.Features {
		positions[f.ID] = i
	}
	created := make(map[string]struct{})
	updated := make(map[string]struct{})

	for i, p := range u.Features {
		if strings.TrimSpace(p.ID) == "" {
			return nil, Report{}, &feature.ValidationError{Patch: i + 1, Field: "id", Reason: "is required"}
		}
		if _, ok := removed[p.ID]; ok {
			continue
		}

		if idx, ok := positions[p.ID]; ok {
			next, err := patchFeature(out.Features[idx], p, now)
			if err != nil {
				return nil, Report{}, err
			}
			if err := runChecks(&next, checks); err != nil {
				return nil, Report{}, err
			}
			out.Features[idx] = next
			_, isNew := created[p.ID]
			if _, seen := updated[p.ID]; !isNew && !seen {
				updated[p.ID] = struct{}{}
				rep.Updated = append(rep.Updated, p.ID)
			}
			continue
		}

		f, err := newFeature(p, now)
		if err != nil {
			return nil, Report{}, err
		}
		if err := runChecks(&f, checks); err != nil {
			return nil, Report{}, err
		}
		positions[p.ID] = len(out.Features)
		out.Features = append(out.Features, f)
		created[p.ID] = struct{}{}
		rep.Created = append(rep.Created, p.ID)
	}

	if rep.Touched() > 0 {
		out.LastUpdated = now
	}
	recency.Rescore(out, now)
	return out, rep, nil
}

func runChecks(f *feature.Feature, checks []Check) error {
	for _, check := range checks {
		if err := check(f); err != nil {
			return err
		}
	}
	return nil
}

func newFeature(p Patch, now int64) (feature.Feature, error) {
	for _, req := range []struct {
		field string
		value Optional[string]
	}{
		{"name", p.Name},
		{"domain", p.Domain},
		{"description", p.Description},
	} {
		if !req.value.Set || req.value.Null {
			return feature.Feature{}, &feature.ValidationError{
				ID:     p.ID,
				Field:  req.field,
				Reason: "is required to create a new feature",
			}
		}
	}

	f := feature.Feature{
		ID:            p.ID,
		Status:        feature.StatusPending,
		Tags:          []string{},
		FilesInvolved: []string{},
		CreatedAt:     now,
	}
	if err := overlay(&f, p); err != nil {
		return feature.Feature{}, err
	}
	f.LastUpdated = now
	if err := feature.Validate(&f); err != nil {
		return feature.Feature{}, err
	}
	return f, nil
}

func patchFeature(existing feature.Feature, p Patch, now int64) (feature.Feature, error) {
	f := existing.Clone()
	if err := overlay(&f, p); err != nil {
		return feature.Feature{}, err
	}
	f.LastUpdated = now
	if err := feature.Validate(&f); err != nil {
		return feature.Feature{}, err
	}
	return f, nil
}

// overlay copies the present fields of p onto f.
func overlay(f *feature.Feature, p Patch) error {
	if p.Name.Set {
		f.Name = p.Name.Value
	}
	if p.Domain.Set {
		f.Domain = p.Domain.Value
	}
	if p.Description.Set {
		f.Description = p.Description.Value
	}
	if p.Status.Set {
		if p.Status.Null {
			return &feature.ValidationError{ID: p.ID, Field: "status", Reason: "must not be null"}
		}
		f.Status = p.Status.Value
	}
	if p.Context.Set {
		if p.Context.Null || p.Context.Value == "" {
			f.Context = nil
		} else {
			c := p.Context.Value
			f.Context = &c
		}
	}
	if p.Tags.Set {
		f.Tags = feature.Union(f.Tags, p.Tags.Value)
	}
	if p.FilesInvolved.Set {
		f.FilesInvolved = feature.Union(f.FilesInvolved, cleanPaths(p.FilesInvolved.Value))
	}
	return nil
}

// cleanPaths puts paths in slash form without redundant elements so that
// "./a/b" and "a/b" collapse to one entry. Blank entries pass through for
// validation to reject.
func cleanPaths(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if strings.TrimSpace(p) == "" {
			out[i] = p
			continue
		}
		out[i] = path.Clean(filepath.ToSlash(p))
	}
	return out
}
