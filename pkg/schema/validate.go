package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FieldError is a single schema violation with its location in the step document.
type FieldError struct {
	Field   string `json:"field"`   // dotted path, e.g. "playbook" or "playbook.0"
	Keyword string `json:"keyword"` // failing schema keyword: required, type, additionalProperties, ...
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Keyword, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Keyword, e.Field, e.Message)
}

// Violation is returned when a step document does not satisfy a backend schema.
// No resources are allocated for a step that fails validation.
type Violation struct {
	Schema string
	Errors []*FieldError
}

func (v *Violation) Error() string {
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Sprintf("step violates schema %s: %s", v.Schema, strings.Join(msgs, "; "))
}

// Fields returns the offending field paths in report order.
func (v *Violation) Fields() []string {
	fields := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

// Validator holds one compiled backend schema. It is immutable after
// construction and safe for concurrent use.
type Validator struct {
	id  string
	raw []byte
	sch *sjsonschema.Schema
}

// Compile builds a Validator from a JSON Schema document.
func Compile(id string, raw []byte) (*Validator, error) {
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", id, err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(id, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", id, err)
	}
	sch, err := c.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", id, err)
	}
	return &Validator{id: id, raw: raw, sch: sch}, nil
}

// ID returns the schema identifier.
func (v *Validator) ID() string { return v.id }

// JSON returns the schema document the validator was compiled from.
func (v *Validator) JSON() []byte {
	out := make([]byte, len(v.raw))
	copy(out, v.raw)
	return out
}

// Validate checks doc against the schema. doc is any value that encodes to
// JSON; it is normalized through a JSON round trip first, the same way a
// step read from YAML or JSON would look. The returned error, if any, is a
// *Violation.
func (v *Validator) Validate(doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return &Violation{Schema: v.id, Errors: []*FieldError{{
			Keyword: "document",
			Message: fmt.Sprintf("not representable as JSON: %v", err),
		}}}
	}
	inst, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &Violation{Schema: v.id, Errors: []*FieldError{{
			Keyword: "document",
			Message: fmt.Sprintf("unmarshal document: %v", err),
		}}}
	}

	err = v.sch.Validate(inst)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return &Violation{Schema: v.id, Errors: []*FieldError{{Keyword: "document", Message: err.Error()}}}
	}
	var errs []*FieldError
	for _, cause := range flattenValidationErrors(ve) {
		errs = append(errs, toFieldError(cause))
	}
	return &Violation{Schema: v.id, Errors: errs}
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

func toFieldError(ve *sjsonschema.ValidationError) *FieldError {
	loc := strings.Join(ve.InstanceLocation, ".")
	fe := &FieldError{
		Field:   loc,
		Keyword: keyword(ve.ErrorKind),
		Message: ve.ErrorKind.LocalizedString(printer),
	}
	// required and additionalProperties fail on the parent object; point at
	// the property itself.
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		fe.Field = joinField(loc, strings.Join(k.Missing, ","))
	case *kind.AdditionalProperties:
		fe.Field = joinField(loc, strings.Join(k.Properties, ","))
	}
	return fe
}

func keyword(k sjsonschema.ErrorKind) string {
	path := k.KeywordPath()
	if len(path) == 0 {
		return "schema"
	}
	return path[len(path)-1]
}

func joinField(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}
