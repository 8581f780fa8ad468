// Package backend defines the contract shared by every execution backend and
// the registry callers use to look backends up by name.
package backend

import (
	"context"

	"github.com/ormasoftchile/jiav/pkg/schema"
)

// Document is an undecoded step document as supplied by a caller. Each
// backend decodes it into its own typed step after validation.
type Document map[string]any

// Backend executes steps of one kind. Callers treat every backend the same
// way and never branch on the concrete type.
type Backend interface {
	// Name is the identifier steps use to select the backend.
	Name() string
	// Schema is fixed for the lifetime of the backend.
	Schema() *schema.Validator
	// Validate checks doc against Schema. It has no side effects.
	Validate(doc Document) error
	// Execute validates doc and runs it. Failures of the executed work are
	// reported inside the Result; the error is reserved for schema
	// violations, configuration errors and materialization errors.
	Execute(ctx context.Context, doc Document) (*Result, error)
}

// Exampler is implemented by backends that can show a sample step document.
type Exampler interface {
	Example() Document
}

// Result is the outcome of one Execute call. Errors is only populated when
// Successful is false.
type Result struct {
	Successful bool     `json:"successful"`
	Output     []string `json:"output"`
	Errors     []string `json:"errors"`
}

// NewResult copies output and errors so the Result does not alias the
// caller's accumulators.
func NewResult(successful bool, output, errors []string) *Result {
	return &Result{
		Successful: successful,
		Output:     append([]string{}, output...),
		Errors:     append([]string{}, errors...),
	}
}
