package ansible

import (
	"fmt"

	"github.com/ormasoftchile/jiav/pkg/backend"
	"github.com/ormasoftchile/jiav/pkg/playbook"
	"github.com/ormasoftchile/jiav/pkg/schema"
)

// SchemaID identifies the ansible step schema.
const SchemaID = "https://github.com/ormasoftchile/jiav/schemas/ansible-step.json"

// Step is a validated ansible step. It is only constructed by ParseStep.
type Step struct {
	Playbook      []playbook.Play `json:"playbook" jsonschema:"minItems=1"`
	AnsibleBinary string          `json:"ansible_binary,omitempty"`
}

// Schema is the ansible backend's step schema: a required, non-empty
// playbook array of plays, an optional ansible_binary string and nothing else.
var Schema = schema.MustReflect(SchemaID, "Ansible step", &Step{})

// MockStep is the example step printed by `jiav schema --example ansible`.
var MockStep = backend.Document{
	"playbook": []any{
		map[string]any{
			"hosts": "localhost",
			"tasks": []any{map[string]any{"shell": "whoami"}},
		},
	},
}

// ParseStep validates doc and decodes it. Play contents are kept as given so
// the materializer sees exactly what the caller supplied.
func ParseStep(doc backend.Document) (*Step, error) {
	if err := Schema.Validate(map[string]any(doc)); err != nil {
		return nil, err
	}
	plays, err := decodePlays(doc["playbook"])
	if err != nil {
		return nil, err
	}
	step := &Step{Playbook: plays}
	if bin, ok := doc["ansible_binary"].(string); ok {
		step.AnsibleBinary = bin
	}
	return step, nil
}

func decodePlays(v any) ([]playbook.Play, error) {
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case []map[string]any:
		for _, m := range val {
			items = append(items, m)
		}
	case []playbook.Play:
		return append([]playbook.Play{}, val...), nil
	default:
		return nil, violation("playbook", "type", fmt.Sprintf("unsupported playbook value %T", v))
	}

	plays := make([]playbook.Play, 0, len(items))
	for i, item := range items {
		switch m := item.(type) {
		case map[string]any:
			plays = append(plays, playbook.Play(m))
		case backend.Document:
			// yaml.v3 gives nested mappings the named type of the decode target.
			plays = append(plays, playbook.Play(m))
		case playbook.Play:
			plays = append(plays, m)
		default:
			return nil, violation(fmt.Sprintf("playbook.%d", i), "type", fmt.Sprintf("play must be a mapping, got %T", item))
		}
	}
	return plays, nil
}

func violation(field, keyword, msg string) error {
	return &schema.Violation{
		Schema: SchemaID,
		Errors: []*schema.FieldError{{Field: field, Keyword: keyword, Message: msg}},
	}
}
