// Package fake provides a scripted engine for contract tests.
package fake

import (
	"context"
	"os"
	"sync"

	"github.com/ormasoftchile/jiav/pkg/engine"
)

// Engine replays a fixed event script and reports a fixed status.
type Engine struct {
	Events []engine.Event
	Status engine.Status
	Err    error
	// SkipArtifacts leaves the artifacts handler for the driver to call.
	SkipArtifacts bool

	mu          sync.Mutex
	invocations []engine.Invocation
	playbooks   [][]byte
}

// New returns an engine reporting status after emitting events.
func New(status engine.Status, events ...engine.Event) *Engine {
	return &Engine{Status: status, Events: events}
}

// Run implements engine.Engine.
func (e *Engine) Run(ctx context.Context, inv engine.Invocation, events chan<- engine.Event) (engine.Status, error) {
	data, _ := os.ReadFile(inv.Playbook)
	e.mu.Lock()
	e.invocations = append(e.invocations, inv)
	e.playbooks = append(e.playbooks, data)
	e.mu.Unlock()

	if e.Err != nil {
		return "", e.Err
	}
	for _, ev := range e.Events {
		select {
		case events <- ev:
		case <-ctx.Done():
			return engine.StatusCanceled, ctx.Err()
		}
	}
	if !e.SkipArtifacts && inv.ArtifactsHandler != nil {
		inv.ArtifactsHandler(inv.PrivateDataDir)
	}
	return e.Status, nil
}

// Invocations returns a copy of every invocation seen.
func (e *Engine) Invocations() []engine.Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.Invocation, len(e.invocations))
	copy(out, e.invocations)
	return out
}

// Playbook returns the playbook content seen by the i-th invocation.
func (e *Engine) Playbook(i int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playbooks[i]
}

var _ engine.Engine = (*Engine)(nil)
