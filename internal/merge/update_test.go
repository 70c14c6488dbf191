package merge

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickthorpe71/legend/internal/feature"
)

func TestDecode_Presence(t *testing.T) {
	u, err := Decode(strings.NewReader(`{"features":[{"id":"a","name":"A","context":null}]}`), FormatJSON)
	require.NoError(t, err)
	require.Len(t, u.Features, 1)

	p := u.Features[0]
	assert.Equal(t, "a", p.ID)
	assert.Equal(t, Some("A"), p.Name)
	assert.False(t, p.Domain.Set)
	assert.True(t, p.Context.Set)
	assert.True(t, p.Context.Null)
	assert.False(t, p.Tags.Set)
}

func TestDecode_YAMLMatchesJSON(t *testing.T) {
	js, err := Decode(strings.NewReader(`{"features":[{"id":"a","name":"A","status":"Blocked","tags":["x","y"]}],"remove_features":["b"]}`), FormatAuto)
	require.NoError(t, err)

	ym, err := Decode(strings.NewReader(`
features:
  - id: a
    name: A
    status: Blocked
    tags: [x, y]
remove_features: [b]
`), FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, js, ym)
}

func TestDecode_Errors(t *testing.T) {
	cases := []struct {
		name   string
		format Format
		input  string
		want   string
	}{
		{"empty", FormatAuto, "  \n", "no input provided"},
		{"json unknown field", FormatJSON, `{"features":[{"id":"a","colour":"red"}]}`, "unknown field"},
		{"json top-level unknown", FormatJSON, `{"feature":[]}`, "unknown field"},
		{"yaml unknown field", FormatYAML, "features:\n  - id: a\n    colour: red\n", "unknown field"},
		{"json syntax", FormatJSON, `{"features":[`, "malformed update document"},
		{"json trailing", FormatJSON, `{"features":[]} {"features":[]}`, "unexpected data"},
		{"yaml patch not mapping", FormatYAML, "features:\n  - just-a-string\n", "must be a mapping"},
		{"tags wrong type", FormatJSON, `{"features":[{"id":"a","tags":"x"}]}`, "malformed update document"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.input), tc.format)
			require.Error(t, err)
			assert.True(t, errors.Is(err, feature.ErrValidation), "got %v", err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatAuto, "auto": FormatAuto, "JSON": FormatJSON, "yml": FormatYAML, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("toml")
	assert.Error(t, err)
}

func TestUpdate_Empty(t *testing.T) {
	assert.True(t, Update{}.Empty())
	assert.False(t, Update{RemoveFeatures: []string{"a"}}.Empty())
}

func TestPatch_EncodeOmitsAbsentFields(t *testing.T) {
	u := Update{Features: []Patch{{ID: "a", Name: Some("A"), Tags: Some([]string{"x"})}}}

	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"features":[{"id":"a","name":"A","tags":["x"]}]}`, string(data))

	back, err := Decode(strings.NewReader(string(data)), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, u, back)
}
