package manifest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ormasoftchile/jiav/pkg/backend"
)

// StepReport is the outcome of one manifest entry. Exactly one of Result,
// Error or Skipped is set.
type StepReport struct {
	Index    int             `json:"index"`
	Name     string          `json:"name"`
	Backend  string          `json:"backend"`
	Result   *backend.Result `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Skipped  bool            `json:"skipped,omitempty"`
	Duration time.Duration   `json:"duration_ns"`
}

// Successful reports whether the step ran and its backend reported success.
func (s StepReport) Successful() bool {
	return s.Result != nil && s.Result.Successful
}

// Report is the outcome of a manifest run.
type Report struct {
	Name  string       `json:"name"`
	Steps []StepReport `json:"steps"`
}

// Successful reports whether every step succeeded.
func (r *Report) Successful() bool {
	for _, s := range r.Steps {
		if !s.Successful() {
			return false
		}
	}
	return true
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	failFast bool
	onStep   func(StepReport)
}

// WithFailFast skips the remaining steps after the first unsuccessful one.
func WithFailFast() Option {
	return func(c *runConfig) { c.failFast = true }
}

// WithStepHook calls fn after each step, including skipped ones.
func WithStepHook(fn func(StepReport)) Option {
	return func(c *runConfig) { c.onStep = fn }
}

// Run executes the manifest entries in order through reg.
func Run(ctx context.Context, reg *backend.Registry, m *Manifest, log zerolog.Logger, opts ...Option) *Report {
	var cfg runConfig
	for _, o := range opts {
		o(&cfg)
	}

	report := &Report{Name: m.Name, Steps: make([]StepReport, 0, len(m.Steps))}
	stop := false
	for i, e := range m.Steps {
		sr := StepReport{Index: i, Name: e.Label(i), Backend: e.Backend}
		slog := log.With().Str("manifest", m.Name).Str("step", sr.Name).Logger()

		switch {
		case stop:
			sr.Skipped = true
			slog.Debug().Msg("step skipped")
		case ctx.Err() != nil:
			sr.Error = ctx.Err().Error()
			stop = true
		default:
			start := time.Now()
			res, err := reg.Execute(ctx, e.Backend, e.Step)
			sr.Duration = time.Since(start)
			if err != nil {
				sr.Error = err.Error()
				slog.Error().Err(err).Msg("step not executed")
			} else {
				sr.Result = res
				slog.Info().Bool("successful", res.Successful).Dur("duration", sr.Duration).Msg("step finished")
			}
			if !sr.Successful() && cfg.failFast {
				stop = true
			}
		}

		report.Steps = append(report.Steps, sr)
		if cfg.onStep != nil {
			cfg.onStep(sr)
		}
	}
	return report
}
