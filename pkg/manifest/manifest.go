// Package manifest loads step manifests and runs their steps through a
// backend registry.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/jiav/pkg/backend"
)

// Manifest is an ordered list of steps, each bound to a backend.
//
//	name: web-check
//	steps:
//	  - name: ping
//	    backend: ansible
//	    step:
//	      playbook:
//	        - hosts: localhost
//	          tasks:
//	            - ping:
type Manifest struct {
	Name  string  `yaml:"name" json:"name"`
	Steps []Entry `yaml:"steps" json:"steps"`
}

// Entry is one step of a manifest.
type Entry struct {
	Name    string           `yaml:"name,omitempty" json:"name,omitempty"`
	Backend string           `yaml:"backend" json:"backend"`
	Step    backend.Document `yaml:"step" json:"step"`
}

// Label is the entry name, or its position when unnamed.
func (e Entry) Label(index int) string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("step %d", index+1)
}

// LoadFile reads and structurally decodes a manifest YAML file.
func LoadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a manifest from r. Unknown fields are rejected.
func Load(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("structural decode: empty manifest")
		}
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	return &m, nil
}

// StepError ties a validation failure to the manifest entry it came from.
type StepError struct {
	Index int
	Name  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Validate checks every entry against its backend without executing
// anything. All failures are returned, in manifest order.
func Validate(reg *backend.Registry, m *Manifest) []*StepError {
	if len(m.Steps) == 0 {
		return []*StepError{{Index: -1, Name: "manifest", Err: errors.New("no steps")}}
	}
	var errs []*StepError
	for i, e := range m.Steps {
		var err error
		if e.Backend == "" {
			err = errors.New("backend is required")
		} else {
			err = reg.Validate(e.Backend, e.Step)
		}
		if err != nil {
			errs = append(errs, &StepError{Index: i, Name: e.Label(i), Err: err})
		}
	}
	return errs
}
