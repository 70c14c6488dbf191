package merge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nickthorpe71/legend/internal/feature"
)

// Optional distinguishes a field absent from a patch (Set == false) from one
// that is present, possibly with an explicit null (Set && Null).
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// IsZero reports whether o is absent, so `omitzero` drops it when encoding.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// decodeYAML fills o from a YAML node. yaml.v3 does not call custom
// unmarshalers for null nodes, so Patch decodes its fields through this.
func (o *Optional[T]) decodeYAML(node *yaml.Node) error {
	o.Set = true
	if node.ShortTag() == "!!null" {
		var zero T
		o.Value = zero
		o.Null = true
		return nil
	}
	return node.Decode(&o.Value)
}

// Patch is a partial feature keyed by ID. Only ID is required; every other
// field is applied only when present.
type Patch struct {
	ID            string                   `json:"id"`
	Name          Optional[string]         `json:"name,omitzero"`
	Domain        Optional[string]         `json:"domain,omitzero"`
	Description   Optional[string]         `json:"description,omitzero"`
	Status        Optional[feature.Status] `json:"status,omitzero"`
	Tags          Optional[[]string]       `json:"tags,omitzero"`
	Context       Optional[string]         `json:"context,omitzero"`
	FilesInvolved Optional[[]string]       `json:"files_involved,omitzero"`
}

func (p *Patch) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: feature patch must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var err error
		switch key.Value {
		case "id":
			if value.ShortTag() != "!!null" {
				err = value.Decode(&p.ID)
			}
		case "name":
			err = p.Name.decodeYAML(value)
		case "domain":
			err = p.Domain.decodeYAML(value)
		case "description":
			err = p.Description.decodeYAML(value)
		case "status":
			err = p.Status.decodeYAML(value)
		case "tags":
			err = p.Tags.decodeYAML(value)
		case "context":
			err = p.Context.decodeYAML(value)
		case "files_involved":
			err = p.FilesInvolved.decodeYAML(value)
		default:
			err = fmt.Errorf("line %d: unknown field %q", key.Line, key.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Update is the document a caller submits: patches to upsert and ids to remove.
type Update struct {
	Features       []Patch  `json:"features" yaml:"features"`
	RemoveFeatures []string `json:"remove_features,omitempty" yaml:"remove_features"`
}

// Empty reports whether the update carries no work.
func (u Update) Empty() bool {
	return len(u.Features) == 0 && len(u.RemoveFeatures) == 0
}

// Format selects the update document syntax.
type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported update format %q (use json, yaml or auto)", s)
}

// Decode reads one update document from r. Empty input and malformed
// documents are reported as feature.ErrValidation.
func Decode(r io.Reader, format Format) (Update, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Update{}, fmt.Errorf("reading update document: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Update{}, &feature.ValidationError{Reason: "no input provided; pipe an update document to stdin"}
	}

	if format == FormatAuto {
		format = FormatYAML
		if trimmed[0] == '{' {
			format = FormatJSON
		}
	}

	var u Update
	switch format {
	case FormatJSON:
		err = decodeJSON(trimmed, &u)
	case FormatYAML:
		err = decodeYAML(trimmed, &u)
	default:
		return Update{}, fmt.Errorf("unsupported update format %q", format)
	}
	if err != nil {
		var ve *feature.ValidationError
		if errors.As(err, &ve) {
			return Update{}, ve
		}
		return Update{}, &feature.ValidationError{Reason: "malformed update document: " + err.Error()}
	}
	return u, nil
}

func decodeJSON(data []byte, u *Update) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(u); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after the update document")
	}
	return nil
}

func decodeYAML(data []byte, u *Update) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(u); err != nil {
		return err
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errors.New("unexpected second document after the update document")
	}
	return nil
}
