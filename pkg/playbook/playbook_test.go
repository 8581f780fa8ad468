package playbook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/jiav/pkg/backend"
)

// unrepresentable cannot be encoded as YAML.
type unrepresentable struct{}

func (unrepresentable) MarshalYAML() (any, error) {
	return nil, errors.New("value has no YAML form")
}

func tempFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "playbook.yml"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func readPlays(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var plays []map[string]any
	if err := yaml.Unmarshal(data, &plays); err != nil {
		t.Fatalf("playbook is not a single YAML sequence: %v\n%s", err, data)
	}
	return plays
}

func TestMaterialize_SinglePlay(t *testing.T) {
	f := tempFile(t)
	plays := []Play{{"hosts": "localhost", "tasks": []any{map[string]any{"shell": "whoami"}}}}
	if err := Materialize(f, plays, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	got := readPlays(t, f.Name())
	if len(got) != 1 || got[0]["hosts"] != "localhost" {
		t.Errorf("plays = %v", got)
	}
}

func TestMaterialize_PreservesOrder(t *testing.T) {
	f := tempFile(t)
	plays := []Play{
		{"name": "first", "hosts": "web"},
		{"name": "second", "hosts": "db"},
		{"name": "third", "hosts": "localhost"},
	}
	if err := Materialize(f, plays, zerolog.Nop()); err != nil {
		t.Fatal(err)
	}
	got := readPlays(t, f.Name())
	if len(got) != 3 {
		t.Fatalf("plays = %d, want 3", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i]["name"] != want {
			t.Errorf("play %d = %v, want %s", i, got[i]["name"], want)
		}
	}
}

func TestMaterialize_AbortsOnFirstFailure(t *testing.T) {
	f := tempFile(t)
	plays := []Play{
		{"name": "ok", "hosts": "localhost"},
		{"name": "bad", "hosts": "localhost", "vars": map[string]any{"x": unrepresentable{}}},
		{"name": "never", "hosts": "localhost"},
	}
	err := Materialize(f, plays, zerolog.Nop())
	var me *backend.MaterializationError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MaterializationError", err)
	}
	if me.Index != 1 {
		t.Errorf("Index = %d, want 1", me.Index)
	}
	got := readPlays(t, f.Name())
	if len(got) != 1 || got[0]["name"] != "ok" {
		t.Errorf("file after abort = %v, want only the first play", got)
	}
}

func TestMaterialize_Empty(t *testing.T) {
	err := Materialize(tempFile(t), nil, zerolog.Nop())
	var me *backend.MaterializationError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MaterializationError", err)
	}
}

func TestWriter_RewindsAfterWrite(t *testing.T) {
	f := tempFile(t)
	w := NewWriter(f, zerolog.Nop())
	if w.Ready() {
		t.Error("new writer should not be ready")
	}
	if err := w.WritePlay(Play{"hosts": "localhost"}); err != nil {
		t.Fatal(err)
	}
	pos, err := f.Seek(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 0 {
		t.Errorf("offset after write = %d, want 0", pos)
	}
	if !w.Ready() || w.Plays() != 1 {
		t.Errorf("ready=%v plays=%d", w.Ready(), w.Plays())
	}

	if err := w.WritePlay(Play{"bad": unrepresentable{}}); err == nil {
		t.Fatal("expected encode error")
	}
	if w.Ready() {
		t.Error("writer should not be ready after failure")
	}
}
