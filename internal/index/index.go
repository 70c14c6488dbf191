// Package index builds the read-only lookup structures derived from a State.
// An Index is never updated in place; rebuild it from the State instead.
package index

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nickthorpe71/legend/internal/feature"
)

// Index is a projection of a State. Every id list is in recency order.
type Index struct {
	ByStatus map[feature.Status][]string
	ByDomain map[string][]string
	ByTag    map[string][]string
	ByFile   map[string][]string

	// Recency holds every id, highest score first, ties broken by id.
	Recency []string

	features map[string]*feature.Feature
}

// Build projects s into an Index. It does not modify s; the Index keeps
// pointers into s.Features, so s must not change while the Index is in use.
func Build(s *feature.State) *Index {
	idx := &Index{
		ByStatus: make(map[feature.Status][]string),
		ByDomain: make(map[string][]string),
		ByTag:    make(map[string][]string),
		ByFile:   make(map[string][]string),
		Recency:  make([]string, 0, len(s.Features)),
		features: make(map[string]*feature.Feature, len(s.Features)),
	}

	order := make([]*feature.Feature, len(s.Features))
	for i := range s.Features {
		order[i] = &s.Features[i]
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].RecencyScore != order[j].RecencyScore {
			return order[i].RecencyScore > order[j].RecencyScore
		}
		return order[i].ID < order[j].ID
	})

	for _, f := range order {
		idx.Recency = append(idx.Recency, f.ID)
		idx.features[f.ID] = f

		idx.ByStatus[f.Status] = append(idx.ByStatus[f.Status], f.ID)
		idx.ByDomain[f.Domain] = append(idx.ByDomain[f.Domain], f.ID)
		for _, tag := range dedupe(f.Tags) {
			idx.ByTag[tag] = append(idx.ByTag[tag], f.ID)
		}
		for _, file := range dedupe(f.FilesInvolved) {
			idx.ByFile[file] = append(idx.ByFile[file], f.ID)
		}
	}
	return idx
}

// Feature returns the indexed feature with the given id, or nil.
func (idx *Index) Feature(id string) *feature.Feature {
	return idx.features[id]
}

// Len returns the number of indexed features.
func (idx *Index) Len() int {
	return len(idx.Recency)
}

// Domains returns every domain, sorted.
func (idx *Index) Domains() []string {
	return sortedKeys(idx.ByDomain)
}

// Tags returns every tag, sorted.
func (idx *Index) Tags() []string {
	return sortedKeys(idx.ByTag)
}

// Query filters features. Zero-valued fields do not filter; set fields are
// combined with AND.
type Query struct {
	// Status matches exactly.
	Status feature.Status
	// Domain matches exactly.
	Domain string
	// Tags matches a feature carrying any of the listed tags.
	Tags []string
	// File matches an exact path or a doublestar glob against files_involved.
	File string
	// Keyword matches a case-insensitive substring of the id, name,
	// description, context or any tag.
	Keyword string
}

// IsZero reports whether q filters nothing.
func (q Query) IsZero() bool {
	return q.Status == "" && q.Domain == "" && len(q.Tags) == 0 && q.File == "" && q.Keyword == ""
}

// Search returns the ids matching q in recency order.
func (idx *Index) Search(q Query) []string {
	candidates := idx.Recency
	if q.Status != "" {
		candidates = intersect(candidates, idx.ByStatus[q.Status])
	}
	if q.Domain != "" {
		candidates = intersect(candidates, idx.ByDomain[q.Domain])
	}
	if len(q.Tags) > 0 {
		var tagged []string
		for _, tag := range q.Tags {
			tagged = append(tagged, idx.ByTag[tag]...)
		}
		candidates = intersect(candidates, tagged)
	}
	if q.File != "" {
		candidates = idx.filterFile(candidates, q.File)
	}
	if q.Keyword != "" {
		candidates = idx.filterKeyword(candidates, q.Keyword)
	}

	out := make([]string, len(candidates))
	copy(out, candidates)
	return out
}

// Features resolves ids to their features, skipping unknown ids.
func (idx *Index) Features(ids []string) []feature.Feature {
	out := make([]feature.Feature, 0, len(ids))
	for _, id := range ids {
		if f := idx.features[id]; f != nil {
			out = append(out, *f)
		}
	}
	return out
}

func (idx *Index) filterFile(candidates []string, pattern string) []string {
	if ids, ok := idx.ByFile[pattern]; ok {
		return intersect(candidates, ids)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil
	}
	var matched []string
	for file, ids := range idx.ByFile {
		if ok, _ := doublestar.Match(pattern, file); ok {
			matched = append(matched, ids...)
		}
	}
	return intersect(candidates, matched)
}

func (idx *Index) filterKeyword(candidates []string, keyword string) []string {
	needle := strings.ToLower(keyword)
	var out []string
	for _, id := range candidates {
		if matchesKeyword(idx.features[id], needle) {
			out = append(out, id)
		}
	}
	return out
}

func matchesKeyword(f *feature.Feature, needle string) bool {
	fields := []string{f.ID, f.Name, f.Description}
	if f.Context != nil {
		fields = append(fields, *f.Context)
	}
	fields = append(fields, f.Tags...)
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// intersect keeps the members of ordered that appear in set, preserving
// the order of ordered.
func intersect(ordered, set []string) []string {
	if len(set) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(set))
	for _, id := range set {
		keep[id] = struct{}{}
	}
	var out []string
	for _, id := range ordered {
		if _, ok := keep[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func dedupe(values []string) []string {
	return feature.Union(nil, values)
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
