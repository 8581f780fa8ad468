package engine

import (
	"encoding/json"
	"fmt"

	"github.com/ormasoftchile/jiav/pkg/ansi"
	"github.com/ormasoftchile/jiav/pkg/backend"
)

// Reducer accumulates output and error lines in event order. A Reducer
// belongs to a single run.
type Reducer struct {
	output []string
	errors []string
}

// Observe folds one event into the accumulators. Every stored line has its
// terminal control sequences stripped.
func (r *Reducer) Observe(ev Event) {
	switch ev.Kind {
	case EventFailed:
		if ev.IgnoreErrors {
			r.output = append(r.output, header(ev, "failed (ignored)"), dump(ev.Result))
			return
		}
		r.errors = append(r.errors, header(ev, "failed"), dump(ev.Result))
	case EventOK:
		r.output = append(r.output, header(ev, "succeeded"), dump(ev.Result))
	}
}

// Fail records an error that prevented the engine from running.
func (r *Reducer) Fail(err error) {
	r.errors = append(r.errors, ansi.Strip("engine: "+err.Error()))
}

// Result builds the final result. A run is successful when the status is
// not failed or timeout and no engine error was recorded. A failed run
// always carries at least one error line.
func (r *Reducer) Result(status Status, runErr error) *backend.Result {
	successful := runErr == nil && !status.Failed()
	if successful {
		return backend.NewResult(true, r.output, nil)
	}
	errs := r.errors
	if len(errs) == 0 {
		errs = []string{ansi.Strip(fmt.Sprintf("engine: run ended with status %q", status))}
	}
	return backend.NewResult(false, r.output, errs)
}

func header(ev Event, verb string) string {
	return ansi.Strip(fmt.Sprintf("Task '%s' %s on host '%s' with result:", ev.Action, verb, ev.Host))
}

// dump renders a task result as one line of JSON with sorted keys.
func dump(res map[string]any) string {
	if res == nil {
		return "{}"
	}
	data, err := json.Marshal(ansi.StripValue(res))
	if err != nil {
		return ansi.Strip(fmt.Sprintf("%v", res))
	}
	return string(data)
}
