// Package engine drives an external automation engine and reduces the events
// it streams into a backend.Result.
package engine

import "context"

// Status is the terminal state token an engine reports when a run ends.
type Status string

const (
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
	StatusCanceled   Status = "canceled"
)

// Failed reports whether the status classifies the run as unsuccessful.
// Only failed and timeout do; every other token counts as success.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusTimeout
}

// Event kinds the reducer acts on. Other kinds are ignored.
const (
	EventOK     = "runner_on_ok"
	EventFailed = "runner_on_failed"
)

// Event is one task-level notification from the engine.
type Event struct {
	Kind         string         `json:"event"`
	Host         string         `json:"host"`
	Action       string         `json:"resolved_action"`
	Task         string         `json:"task,omitempty"`
	IgnoreErrors bool           `json:"ignore_errors,omitempty"`
	Result       map[string]any `json:"res,omitempty"`
}

// Invocation is everything an engine needs for one run.
type Invocation struct {
	// Binary optionally overrides the engine's playbook binary.
	Binary         string
	PrivateDataDir string
	Playbook       string
	Verbosity      int
	// ArtifactsHandler is called by the engine once it has produced its
	// terminal status and no longer needs PrivateDataDir.
	ArtifactsHandler func(dir string)
}

// Engine runs a materialized playbook. Run blocks until the engine reaches a
// terminal status, sending one Event per completed task on events in
// emission order. Run must not send on events after it returns. A non-nil
// error means the engine could not run at all.
type Engine interface {
	Run(ctx context.Context, inv Invocation, events chan<- Event) (Status, error)
}

// Checker is implemented by engines that can verify their configuration
// before any resource is allocated for a run.
type Checker interface {
	Check() error
}
