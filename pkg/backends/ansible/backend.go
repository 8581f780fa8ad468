// Package ansible implements the backend that runs ansible playbooks through
// an external engine.
package ansible

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ormasoftchile/jiav/pkg/backend"
	"github.com/ormasoftchile/jiav/pkg/engine"
	"github.com/ormasoftchile/jiav/pkg/playbook"
	"github.com/ormasoftchile/jiav/pkg/schema"
	"github.com/ormasoftchile/jiav/pkg/trace"
	"github.com/ormasoftchile/jiav/pkg/workspace"
)

// Name is the backend identifier used in step manifests.
const Name = "ansible"

// DefaultVerbosity is the engine verbosity used when Options.Verbosity is 0.
const DefaultVerbosity = 3

// Options configures a Backend. The zero value runs ansible-runner from
// PATH with verbosity 3 in os.TempDir.
type Options struct {
	// Engine defaults to an engine.RunnerEngine using engine.DefaultRunnerBinary.
	Engine engine.Engine
	// TempDir is where workspaces are created.
	TempDir string
	// AnsibleBinary is used when a step does not set ansible_binary.
	AnsibleBinary string
	Verbosity     int
	// EventBuffer is the capacity of the engine event queue.
	EventBuffer int
	Log         zerolog.Logger
	Trace       *trace.Writer
}

// Backend runs ansible steps. A Backend holds no per-run state; concurrent
// Execute calls each get their own workspace and accumulators.
type Backend struct {
	opts Options
	log  zerolog.Logger
}

// New returns an ansible backend.
func New(opts Options) *Backend {
	if opts.Verbosity == 0 {
		opts.Verbosity = DefaultVerbosity
	}
	log := opts.Log.With().Str("backend", Name).Logger()
	if opts.Engine == nil {
		opts.Engine = &engine.RunnerEngine{Binary: engine.DefaultRunnerBinary, Log: log}
	}
	return &Backend{opts: opts, log: log}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Schema() *schema.Validator { return Schema }

func (b *Backend) Example() backend.Document { return MockStep }

// Validate checks doc against Schema.
func (b *Backend) Validate(doc backend.Document) error {
	_, err := ParseStep(doc)
	return err
}

// Execute validates doc and runs it.
func (b *Backend) Execute(ctx context.Context, doc backend.Document) (*backend.Result, error) {
	runID := uuid.NewString()
	tw := b.opts.Trace.WithRun(runID)
	tw.EmitRunStart(Name, doc)

	step, err := ParseStep(doc)
	if err != nil {
		b.log.Error().Err(err).Str("run_id", runID).Msg("step rejected")
		tw.EmitStepRejected("schema", err)
		return nil, err
	}
	return b.run(ctx, step, runID, tw)
}

// Run executes an already parsed step.
func (b *Backend) Run(ctx context.Context, step *Step) (*backend.Result, error) {
	runID := uuid.NewString()
	return b.run(ctx, step, runID, b.opts.Trace.WithRun(runID))
}

func (b *Backend) run(ctx context.Context, step *Step, runID string, tw *trace.Writer) (*backend.Result, error) {
	start := time.Now()
	log := b.log.With().Str("run_id", runID).Logger()

	if c, ok := b.opts.Engine.(engine.Checker); ok {
		if err := c.Check(); err != nil {
			log.Error().Err(err).Msg("engine not usable")
			tw.EmitStepRejected("configuration", err)
			return nil, err
		}
	}

	ws, err := workspace.Open(b.opts.TempDir, log)
	if err != nil {
		return nil, err
	}
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			tw.EmitWorkspaceReleased(ws.Dir(), ws.Release())
		})
	}
	defer release()
	tw.EmitWorkspaceOpen(ws.PlaybookPath(), ws.Dir())

	if err := playbook.Materialize(ws.File(), step.Playbook, log); err != nil {
		tw.EmitStepRejected("materialization", err)
		return nil, err
	}
	tw.EmitPlaybookWritten(ws.PlaybookPath(), len(step.Playbook))

	bin := step.AnsibleBinary
	if bin == "" {
		bin = b.opts.AnsibleBinary
	}
	d := &engine.Driver{
		Engine: b.opts.Engine,
		Buffer: b.opts.EventBuffer,
		Log:    log,
		OnEvent: func(ev engine.Event) {
			tw.EmitEngineEvent(ev.Kind, ev.Host, ev.Action, ev.Result)
		},
	}
	res := d.Run(ctx, engine.Invocation{
		Binary:           bin,
		PrivateDataDir:   ws.Dir(),
		Playbook:         ws.PlaybookPath(),
		Verbosity:        b.opts.Verbosity,
		ArtifactsHandler: func(string) { release() },
	})
	tw.EmitRunComplete(res.Successful, len(res.Output), len(res.Errors), time.Since(start))
	return res, nil
}

var (
	_ backend.Backend  = (*Backend)(nil)
	_ backend.Exampler = (*Backend)(nil)
)
