package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ormasoftchile/jiav/pkg/backend"
)

// DefaultBuffer is the event queue capacity when Driver.Buffer is zero.
const DefaultBuffer = 64

// Driver runs an Engine and reduces its event stream. Events flow through a
// bounded channel to a single reducer goroutine, so output order is
// emission order.
type Driver struct {
	Engine Engine
	Buffer int
	Log    zerolog.Logger
	// OnEvent, when set, sees every event after it is reduced.
	OnEvent func(Event)
}

// Run invokes the engine and returns the reduced result. The artifacts
// handler in inv is called exactly once: by the engine, or by Run after the
// engine returns if the engine did not.
func (d *Driver) Run(ctx context.Context, inv Invocation) *backend.Result {
	size := d.Buffer
	if size <= 0 {
		size = DefaultBuffer
	}

	var once sync.Once
	handler := inv.ArtifactsHandler
	inv.ArtifactsHandler = func(dir string) {
		once.Do(func() {
			if handler != nil {
				handler(dir)
			}
		})
	}

	events := make(chan Event, size)
	reducer := &Reducer{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			reducer.Observe(ev)
			if d.OnEvent != nil {
				d.OnEvent(ev)
			}
		}
	}()

	d.Log.Debug().
		Str("playbook", inv.Playbook).
		Str("private_data_dir", inv.PrivateDataDir).
		Int("verbosity", inv.Verbosity).
		Msg("invoking engine")

	status, err := d.Engine.Run(ctx, inv, events)
	close(events)
	<-done
	inv.ArtifactsHandler(inv.PrivateDataDir)

	if err != nil {
		d.Log.Error().Err(err).Msg("engine did not run")
		reducer.Fail(err)
	}
	result := reducer.Result(status, err)
	if result.Successful {
		d.Log.Info().Str("status", string(status)).Msg("playbook executed successfully")
	} else {
		d.Log.Error().Str("status", string(status)).Strs("errors", result.Errors).Msg("failed to execute playbook")
	}
	return result
}
