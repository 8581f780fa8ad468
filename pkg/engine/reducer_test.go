package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestReducer_OK(t *testing.T) {
	r := &Reducer{}
	r.Observe(Event{
		Kind:   EventOK,
		Host:   "localhost",
		Action: "ansible.builtin.shell",
		Result: map[string]any{"stdout": "root", "rc": 0},
	})
	res := r.Result(StatusSuccessful, nil)
	if !res.Successful {
		t.Fatal("expected success")
	}
	want := []string{
		"Task 'ansible.builtin.shell' succeeded on host 'localhost' with result:",
		`{"rc":0,"stdout":"root"}`,
	}
	if strings.Join(res.Output, "\n") != strings.Join(want, "\n") {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %q", res.Errors)
	}
}

func TestReducer_Failed(t *testing.T) {
	r := &Reducer{}
	r.Observe(Event{Kind: EventFailed, Host: "db1", Action: "ansible.builtin.command", Result: map[string]any{"rc": 2}})
	res := r.Result(StatusFailed, nil)
	if res.Successful {
		t.Fatal("expected failure")
	}
	if len(res.Errors) != 2 || res.Errors[0] != "Task 'ansible.builtin.command' failed on host 'db1' with result:" {
		t.Errorf("errors = %q", res.Errors)
	}
	if len(res.Output) != 0 {
		t.Errorf("output = %q", res.Output)
	}
}

func TestReducer_IgnoredFailureGoesToOutput(t *testing.T) {
	r := &Reducer{}
	r.Observe(Event{Kind: EventFailed, IgnoreErrors: true, Host: "h", Action: "shell"})
	res := r.Result(StatusSuccessful, nil)
	if !res.Successful || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Output[0] != "Task 'shell' failed (ignored) on host 'h' with result:" || res.Output[1] != "{}" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestReducer_IgnoresOtherKinds(t *testing.T) {
	r := &Reducer{}
	for _, kind := range []string{"playbook_on_start", "runner_on_skipped", "runner_on_unreachable", "verbose", ""} {
		r.Observe(Event{Kind: kind, Host: "h", Action: "a"})
	}
	res := r.Result(StatusSuccessful, nil)
	if len(res.Output) != 0 || len(res.Errors) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestReducer_PreservesEmissionOrder(t *testing.T) {
	r := &Reducer{}
	hosts := []string{"a", "b", "a", "c", "b"}
	for _, h := range hosts {
		r.Observe(Event{Kind: EventOK, Host: h, Action: "ping"})
	}
	res := r.Result(StatusSuccessful, nil)
	for i, h := range hosts {
		want := "Task 'ping' succeeded on host '" + h + "' with result:"
		if res.Output[2*i] != want {
			t.Errorf("line %d = %q, want %q", 2*i, res.Output[2*i], want)
		}
	}
}

func TestReducer_StatusClassification(t *testing.T) {
	tests := map[Status]bool{
		StatusSuccessful: true,
		StatusCanceled:   true,
		"unknown":        true,
		StatusFailed:     false,
		StatusTimeout:    false,
	}
	for status, want := range tests {
		t.Run(string(status), func(t *testing.T) {
			r := &Reducer{}
			if got := r.Result(status, nil).Successful; got != want {
				t.Errorf("Successful = %v, want %v", got, want)
			}
		})
	}
}

func TestReducer_EngineErrorFails(t *testing.T) {
	r := &Reducer{}
	r.Fail(errors.New("exec: \"ansible-runner\": not found"))
	res := r.Result(StatusSuccessful, errors.New("x"))
	if res.Successful {
		t.Fatal("engine error must fail the run")
	}
	if !strings.HasPrefix(res.Errors[0], "engine: ") {
		t.Errorf("errors = %q", res.Errors)
	}
}

func TestReducer_StripsEscapes(t *testing.T) {
	r := &Reducer{}
	r.Observe(Event{
		Kind:   EventOK,
		Host:   "\x1b[32mlocalhost\x1b[0m",
		Action: "shell",
		Result: map[string]any{"stdout": "\x1b[1mroot\x1b[0m"},
	})
	res := r.Result(StatusSuccessful, nil)
	for _, line := range res.Output {
		if strings.Contains(line, "\x1b") || strings.Contains(line, `\u001b`) {
			t.Errorf("line still has escapes: %q", line)
		}
	}
	if res.Output[1] != `{"stdout":"root"}` {
		t.Errorf("dump = %q", res.Output[1])
	}
}

func TestReducer_FailedStatusWithoutEvents(t *testing.T) {
	for _, status := range []Status{StatusFailed, StatusTimeout} {
		t.Run(string(status), func(t *testing.T) {
			r := &Reducer{}
			res := r.Result(status, nil)
			if res.Successful {
				t.Fatal("expected failure")
			}
			want := `engine: run ended with status "` + string(status) + `"`
			if len(res.Errors) != 1 || res.Errors[0] != want {
				t.Errorf("errors = %q, want [%q]", res.Errors, want)
			}
		})
	}
}
