// Package shell implements a backend that runs one shell command per step.
// Output is captured as raw transcripts and sanitized line by line.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ormasoftchile/jiav/pkg/ansi"
	"github.com/ormasoftchile/jiav/pkg/backend"
	"github.com/ormasoftchile/jiav/pkg/schema"
	"github.com/ormasoftchile/jiav/pkg/trace"
)

const (
	Name           = "shell"
	SchemaID       = "https://github.com/ormasoftchile/jiav/schemas/shell-step.json"
	DefaultShell   = "sh"
	DefaultTimeout = 5 * time.Minute
)

// Step is a validated shell step.
type Step struct {
	Command string `json:"command" jsonschema:"minLength=1"`
	Workdir string `json:"workdir,omitempty"`
	// Expect is an expr-lang boolean over exit_code, stdout and stderr,
	// e.g. `stdout contains "root"`.
	Expect  string `json:"expect,omitempty"`
	Timeout string `json:"timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`

	program *vm.Program
	timeout time.Duration
}

// Schema is the shell backend's step schema.
var Schema = schema.MustReflect(SchemaID, "Shell step", &Step{})

// MockStep is the example step printed by `jiav schema --example shell`.
var MockStep = backend.Document{
	"command": "whoami",
	"expect":  `exit_code == 0 && stdout != ""`,
}

// env is the expectation environment.
type env struct {
	ExitCode int    `expr:"exit_code"`
	Stdout   string `expr:"stdout"`
	Stderr   string `expr:"stderr"`
}

// ParseStep validates doc and decodes it, compiling the expectation.
func ParseStep(doc backend.Document) (*Step, error) {
	if err := Schema.Validate(map[string]any(doc)); err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode step: %w", err)
	}
	var step Step
	if err := json.Unmarshal(data, &step); err != nil {
		return nil, fmt.Errorf("decode step: %w", err)
	}
	if step.Expect != "" {
		program, err := expr.Compile(step.Expect, expr.Env(env{}), expr.AsBool())
		if err != nil {
			return nil, &schema.Violation{Schema: SchemaID, Errors: []*schema.FieldError{{
				Field: "expect", Keyword: "expr", Message: err.Error(),
			}}}
		}
		step.program = program
	}
	if step.Timeout != "" {
		d, err := time.ParseDuration(step.Timeout)
		if err != nil {
			return nil, &schema.Violation{Schema: SchemaID, Errors: []*schema.FieldError{{
				Field: "timeout", Keyword: "pattern", Message: err.Error(),
			}}}
		}
		step.timeout = d
	}
	return &step, nil
}

// Options configures a Backend.
type Options struct {
	Shell   string
	Timeout time.Duration // used when a step sets none
	Log     zerolog.Logger
	Trace   *trace.Writer
}

// Backend runs shell steps.
type Backend struct {
	opts Options
	log  zerolog.Logger
}

// New returns a shell backend.
func New(opts Options) *Backend {
	if opts.Shell == "" {
		opts.Shell = DefaultShell
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Backend{opts: opts, log: opts.Log.With().Str("backend", Name).Logger()}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Schema() *schema.Validator { return Schema }

func (b *Backend) Example() backend.Document { return MockStep }

func (b *Backend) Validate(doc backend.Document) error {
	_, err := ParseStep(doc)
	return err
}

// Execute validates doc and runs the command.
func (b *Backend) Execute(ctx context.Context, doc backend.Document) (*backend.Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	tw := b.opts.Trace.WithRun(runID)
	tw.EmitRunStart(Name, doc)
	log := b.log.With().Str("run_id", runID).Logger()

	step, err := ParseStep(doc)
	if err != nil {
		log.Error().Err(err).Msg("step rejected")
		tw.EmitStepRejected("schema", err)
		return nil, err
	}
	if _, err := exec.LookPath(b.opts.Shell); err != nil {
		cerr := &backend.ConfigurationError{Param: "shell", Reason: err.Error()}
		tw.EmitStepRejected("configuration", cerr)
		return nil, cerr
	}

	timeout := step.timeout
	if timeout == 0 {
		timeout = b.opts.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.opts.Shell, "-c", step.Command) //#nosec G204 -- command comes from the step author
	if step.Workdir != "" {
		cmd.Dir = step.Workdir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	log.Debug().Str("command", step.Command).Msg("running command")
	runErr := cmd.Run()

	out := env{Stdout: stdout.String(), Stderr: stderr.String()}
	var failures []string
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			out.ExitCode = -1
			failures = append(failures, fmt.Sprintf("command timed out after %s", timeout))
		case errors.As(runErr, &exitErr):
			out.ExitCode = exitErr.ExitCode()
			failures = append(failures, fmt.Sprintf("command exited with code %d", out.ExitCode))
		default:
			out.ExitCode = -1
			failures = append(failures, fmt.Sprintf("command did not run: %v", runErr))
		}
	}
	if len(failures) == 0 && step.program != nil {
		ok, err := evalExpect(step.program, out)
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("evaluate expectation %q: %v", step.Expect, err))
		case !ok:
			failures = append(failures, fmt.Sprintf("expectation not met: %s", step.Expect))
		}
	}

	output := lines(out.Stdout)
	var res *backend.Result
	if len(failures) == 0 {
		log.Info().Msg("command succeeded")
		res = backend.NewResult(true, output, nil)
	} else {
		errs := append(lines(out.Stderr), ansi.StripAll(failures)...)
		log.Error().Strs("errors", errs).Msg("command failed")
		res = backend.NewResult(false, output, errs)
	}
	tw.EmitRunComplete(res.Successful, len(res.Output), len(res.Errors), time.Since(start))
	return res, nil
}

func evalExpect(program *vm.Program, e env) (bool, error) {
	v, err := expr.Run(program, e)
	if err != nil {
		return false, err
	}
	ok, isBool := v.(bool)
	if !isBool {
		return false, fmt.Errorf("expectation did not return bool (got %T)", v)
	}
	return ok, nil
}

// lines splits a transcript into sanitized lines, dropping the trailing
// empty line left by a final newline.
func lines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return ansi.StripAll(strings.Split(s, "\n"))
}

var (
	_ backend.Backend  = (*Backend)(nil)
	_ backend.Exampler = (*Backend)(nil)
)
