package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ormasoftchile/jiav/pkg/engine"
	"github.com/ormasoftchile/jiav/pkg/engine/fake"
)

func TestDriver_Success(t *testing.T) {
	eng := fake.New(engine.StatusSuccessful, engine.Event{Kind: engine.EventOK, Host: "localhost", Action: "shell"})
	cleanups := 0
	d := &engine.Driver{Engine: eng, Log: zerolog.Nop()}
	res := d.Run(context.Background(), engine.Invocation{
		PrivateDataDir:   "/tmp/x",
		ArtifactsHandler: func(string) { cleanups++ },
	})
	if !res.Successful || len(res.Output) != 2 {
		t.Errorf("result = %+v", res)
	}
	if cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", cleanups)
	}
}

func TestDriver_ArtifactsHandlerCalledWhenEngineSkipsIt(t *testing.T) {
	for _, skip := range []bool{true, false} {
		t.Run(fmt.Sprint("skip=", skip), func(t *testing.T) {
			eng := fake.New(engine.StatusFailed)
			eng.SkipArtifacts = skip
			var dirs []string
			d := &engine.Driver{Engine: eng, Log: zerolog.Nop()}
			d.Run(context.Background(), engine.Invocation{
				PrivateDataDir:   "/tmp/private",
				ArtifactsHandler: func(dir string) { dirs = append(dirs, dir) },
			})
			if len(dirs) != 1 || dirs[0] != "/tmp/private" {
				t.Errorf("handler calls = %v", dirs)
			}
		})
	}
}

func TestDriver_EngineError(t *testing.T) {
	eng := &fake.Engine{Err: errors.New("start ansible-runner: no such file")}
	cleanups := 0
	d := &engine.Driver{Engine: eng, Log: zerolog.Nop()}
	res := d.Run(context.Background(), engine.Invocation{ArtifactsHandler: func(string) { cleanups++ }})
	if res.Successful {
		t.Fatal("expected failure")
	}
	if len(res.Errors) != 1 {
		t.Errorf("errors = %q", res.Errors)
	}
	if cleanups != 1 {
		t.Errorf("cleanups = %d", cleanups)
	}
}

// More events than the queue holds must still arrive in order.
func TestDriver_SmallBufferKeepsOrder(t *testing.T) {
	var evs []engine.Event
	for i := 0; i < 50; i++ {
		kind := engine.EventOK
		if i%7 == 0 {
			kind = engine.EventFailed
		}
		evs = append(evs, engine.Event{Kind: kind, Host: fmt.Sprintf("h%02d", i), Action: "ping"})
	}
	var seen []string
	d := &engine.Driver{
		Engine:  fake.New(engine.StatusFailed, evs...),
		Buffer:  1,
		Log:     zerolog.Nop(),
		OnEvent: func(ev engine.Event) { seen = append(seen, ev.Host) },
	}
	res := d.Run(context.Background(), engine.Invocation{})

	if len(seen) != len(evs) {
		t.Fatalf("observed %d events, want %d", len(seen), len(evs))
	}
	for i := range evs {
		if seen[i] != evs[i].Host {
			t.Fatalf("event %d = %s, want %s", i, seen[i], evs[i].Host)
		}
	}
	if len(res.Output)+len(res.Errors) != 2*len(evs) {
		t.Errorf("lines = %d, want %d", len(res.Output)+len(res.Errors), 2*len(evs))
	}
}

func TestDriver_IndependentRuns(t *testing.T) {
	d := &engine.Driver{Engine: fake.New(engine.StatusSuccessful, engine.Event{Kind: engine.EventOK, Host: "h", Action: "a"}), Log: zerolog.Nop()}
	first := d.Run(context.Background(), engine.Invocation{})
	second := d.Run(context.Background(), engine.Invocation{})
	if len(first.Output) != 2 || len(second.Output) != 2 {
		t.Errorf("accumulators leaked between runs: %d %d", len(first.Output), len(second.Output))
	}
}
