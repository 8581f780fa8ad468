// Package schema compiles backend step schemas and validates step documents
// against them before any execution resource is allocated.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Reflect produces a JSON Schema Draft 2020-12 document from a typed step
// variant and compiles it. Struct fields without omitempty are required and
// unknown properties are rejected.
func Reflect(id, title string, v any) (*Validator, error) {
	r := &jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(v)
	s.ID = jsonschema.ID(id)
	s.Title = title

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", id, err)
	}
	return Compile(id, data)
}

// MustReflect is like Reflect but panics on error. Intended for package-level
// schema declarations of built-in backends.
func MustReflect(id, title string, v any) *Validator {
	val, err := Reflect(id, title, v)
	if err != nil {
		panic(err)
	}
	return val
}
