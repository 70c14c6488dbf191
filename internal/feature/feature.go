// Package feature defines the Feature and State records Legend persists,
// together with the validation rules every stored record satisfies.
package feature

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	// FormatVersion is the schema version stamped on every State.
	FormatVersion = 1

	// MaxFeatures is the hard cap on features in one State.
	MaxFeatures = 1000

	// MaxDescriptionBytes bounds Feature.Description.
	MaxDescriptionBytes = 2048

	// MaxPathBytes bounds each Feature.FilesInvolved entry.
	MaxPathBytes = 512
)

// Status is the closed set of lifecycle states a feature can be in.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusBlocked    Status = "Blocked"
	StatusComplete   Status = "Complete"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusBlocked, StatusComplete}

// ParseStatus returns the Status named by s. Names are matched exactly.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &ValidationError{
		Field:  "status",
		Reason: fmt.Sprintf("unknown status %q: must be one of Pending, InProgress, Blocked, Complete", s),
	}
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ValidationError{Field: "status", Reason: "must be a string"}
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s *Status) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return &ValidationError{Field: "status", Reason: "must be a string"}
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Feature is one tracked unit of project work.
type Feature struct {
	// Identity
	ID   string `json:"id" msgpack:"id" validate:"nonblank"`
	Name string `json:"name" msgpack:"name" validate:"nonblank"`

	// Categorization
	Domain string   `json:"domain" msgpack:"domain" validate:"nonblank"`
	Tags   []string `json:"tags" msgpack:"tags" validate:"dive,nonblank"`
	Status Status   `json:"status" msgpack:"status" validate:"status"`

	// Context
	Description string  `json:"description" msgpack:"description" validate:"nonblank,maxbytes=2048"`
	Context     *string `json:"context,omitempty" msgpack:"context"`

	FilesInvolved []string `json:"files_involved" msgpack:"files_involved" validate:"dive,nonblank,maxbytes=512"`

	// Seconds since epoch. RecencyScore is derived from LastUpdated.
	CreatedAt    int64   `json:"created_at" msgpack:"created_at"`
	LastUpdated  int64   `json:"last_updated" msgpack:"last_updated"`
	RecencyScore float64 `json:"recency_score" msgpack:"recency_score"`
}

// IsComplete reports whether the feature is in the Complete state.
func (f *Feature) IsComplete() bool {
	return f.Status == StatusComplete
}

// Clone returns a deep copy of f.
func (f Feature) Clone() Feature {
	out := f
	out.Tags = append([]string{}, f.Tags...)
	out.FilesInvolved = append([]string{}, f.FilesInvolved...)
	if f.Context != nil {
		c := *f.Context
		out.Context = &c
	}
	return out
}

// State is the aggregate root that is persisted as one artifact.
type State struct {
	Version     int       `json:"version" msgpack:"version"`
	ProjectName string    `json:"project_name" msgpack:"project_name"`
	CreatedAt   int64     `json:"created_at" msgpack:"created_at"`
	LastUpdated int64     `json:"last_updated" msgpack:"last_updated"`
	Features    []Feature `json:"features" msgpack:"features"`
}

// NewState returns an empty State stamped with now.
func NewState(projectName string, now int64) *State {
	return &State{
		Version:     FormatVersion,
		ProjectName: projectName,
		CreatedAt:   now,
		LastUpdated: now,
		Features:    []Feature{},
	}
}

// Find returns the feature with the given id, or nil.
func (s *State) Find(id string) *Feature {
	for i := range s.Features {
		if s.Features[i].ID == id {
			return &s.Features[i]
		}
	}
	return nil
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	out := *s
	out.Features = make([]Feature, len(s.Features))
	for i, f := range s.Features {
		out.Features[i] = f.Clone()
	}
	return &out
}

// Stats holds aggregate counts across the features of a State.
type Stats struct {
	Total    int            `json:"total"`
	Complete int            `json:"complete"`
	ByStatus map[Status]int `json:"by_status"`
}

// Stats counts features per status.
func (s *State) Stats() Stats {
	st := Stats{Total: len(s.Features), ByStatus: make(map[Status]int, len(Statuses))}
	for _, status := range Statuses {
		st.ByStatus[status] = 0
	}
	for _, f := range s.Features {
		st.ByStatus[f.Status]++
	}
	st.Complete = st.ByStatus[StatusComplete]
	return st
}

// Validate checks the structural invariants of a decoded State: non-empty
// unique ids and known statuses. It does not re-check field lengths, so a
// State written under looser limits still loads.
func (s *State) Validate() error {
	seen := make(map[string]struct{}, len(s.Features))
	for i, f := range s.Features {
		if f.ID == "" {
			return fmt.Errorf("feature at position %d has an empty id", i)
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("duplicate feature id %q", f.ID)
		}
		seen[f.ID] = struct{}{}
		if !f.Status.Valid() {
			return fmt.Errorf("feature %q has unknown status %q", f.ID, f.Status)
		}
	}
	return nil
}

// Normalize replaces nil collections with empty ones so JSON output is stable.
func (s *State) Normalize() {
	if s.Features == nil {
		s.Features = []Feature{}
	}
	for i := range s.Features {
		f := &s.Features[i]
		if f.Tags == nil {
			f.Tags = []string{}
		}
		if f.FilesInvolved == nil {
			f.FilesInvolved = []string{}
		}
	}
}

// Union appends the members of incoming that are not already in existing,
// dropping duplicates and keeping first-seen order. The result is never nil.
func Union(existing []string, incoming ...[]string) []string {
	out := make([]string, 0, len(existing))
	seen := make(map[string]struct{}, len(existing))
	add := func(values []string) {
		for _, v := range values {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	add(existing)
	for _, values := range incoming {
		add(values)
	}
	return out
}
