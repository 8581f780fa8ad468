package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ormasoftchile/jiav/pkg/backend"
)

// DefaultRunnerBinary is the ansible-runner executable looked up on PATH.
const DefaultRunnerBinary = "ansible-runner"

// DefaultGracePeriod is how long a canceled runner has between SIGTERM and
// SIGKILL.
const DefaultGracePeriod = 10 * time.Second

// RunnerEngine runs playbooks through the ansible-runner CLI. Job events are
// read as JSON lines from its stdout; the terminal status comes from the
// artifacts directory ansible-runner writes under the private data dir.
type RunnerEngine struct {
	Binary  string
	Timeout time.Duration // zero means no engine-side timeout
	Env     []string      // extra KEY=VALUE pairs for the runner process
	// GracePeriod bounds the wait after SIGTERM on cancel or timeout.
	// Zero means DefaultGracePeriod.
	GracePeriod time.Duration
	Log         zerolog.Logger
}

// Check verifies the runner binary is set and resolvable.
func (e *RunnerEngine) Check() error {
	if e.Binary == "" {
		return &backend.ConfigurationError{Param: "runner_binary", Reason: "not set and no default applies"}
	}
	if _, err := exec.LookPath(e.Binary); err != nil {
		return &backend.ConfigurationError{Param: "runner_binary", Reason: err.Error()}
	}
	return nil
}

// Args returns the ansible-runner command line for inv.
func (e *RunnerEngine) Args(inv Invocation, ident string) []string {
	args := []string{"run", inv.PrivateDataDir, "-p", inv.Playbook, "--ident", ident, "-j"}
	if inv.Verbosity > 0 {
		args = append(args, "-"+strings.Repeat("v", inv.Verbosity))
	}
	if inv.Binary != "" {
		args = append(args, "--binary", inv.Binary)
	}
	return args
}

// Run implements Engine.
func (e *RunnerEngine) Run(ctx context.Context, inv Invocation, events chan<- Event) (Status, error) {
	ident := uuid.NewString()
	log := e.Log.With().Str("ident", ident).Logger()

	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.Binary, e.Args(inv, ident)...) //#nosec G204 -- binary comes from operator configuration
	cmd.Env = append(os.Environ(), e.Env...)
	// ansible-runner tears down its ansible-playbook child on SIGTERM; a
	// SIGKILL would orphan it.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = e.GracePeriod
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultGracePeriod
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", e.Binary, err)
	}
	log.Debug().Int("pid", cmd.Process.Pid).Msg("runner started")

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		ev, ok := parseEvent(scanner.Bytes())
		if !ok {
			continue
		}
		events <- ev
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("stopped reading runner events")
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	status, err := e.status(ctx, runCtx, inv.PrivateDataDir, ident, waitErr)
	if stderr.Len() > 0 {
		lvl := zerolog.DebugLevel
		if status.Failed() {
			lvl = zerolog.WarnLevel
		}
		log.WithLevel(lvl).Str("status", string(status)).Str("stderr", stderr.String()).Msg("runner stderr")
	}
	if inv.ArtifactsHandler != nil {
		inv.ArtifactsHandler(inv.PrivateDataDir)
	}
	return status, err
}

func (e *RunnerEngine) status(ctx, runCtx context.Context, dir, ident string, waitErr error) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusCanceled, fmt.Errorf("run canceled: %w", err)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return StatusTimeout, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, "artifacts", ident, "status"))
	if err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return Status(s), nil
		}
	}
	if waitErr == nil {
		return StatusSuccessful, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return StatusFailed, nil
	}
	return "", fmt.Errorf("wait %s: %w", e.Binary, waitErr)
}

// wireEvent is the job event shape ansible-runner prints with --json.
type wireEvent struct {
	Event     string `json:"event"`
	EventData struct {
		Host           string         `json:"host"`
		ResolvedAction string         `json:"resolved_action"`
		Task           string         `json:"task"`
		IgnoreErrors   bool           `json:"ignore_errors"`
		Res            map[string]any `json:"res"`
	} `json:"event_data"`
}

func parseEvent(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return Event{}, false
	}
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil || w.Event == "" {
		return Event{}, false
	}
	return Event{
		Kind:         w.Event,
		Host:         w.EventData.Host,
		Action:       w.EventData.ResolvedAction,
		Task:         w.EventData.Task,
		IgnoreErrors: w.EventData.IgnoreErrors,
		Result:       w.EventData.Res,
	}, true
}
