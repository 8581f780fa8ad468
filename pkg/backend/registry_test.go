package backend

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ormasoftchile/jiav/pkg/schema"
)

type stubStep struct {
	Message string `json:"message"`
}

var stubSchema = schema.MustReflect("https://example.test/stub.json", "stub", &stubStep{})

type stubBackend struct {
	name  string
	calls int
}

func (b *stubBackend) Name() string              { return b.name }
func (b *stubBackend) Schema() *schema.Validator { return stubSchema }
func (b *stubBackend) Validate(doc Document) error {
	return stubSchema.Validate(doc)
}
func (b *stubBackend) Execute(ctx context.Context, doc Document) (*Result, error) {
	if err := b.Validate(doc); err != nil {
		return nil, err
	}
	b.calls++
	return NewResult(true, []string{doc["message"].(string)}, nil), nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r, err := NewRegistry(&stubBackend{name: "b"}, &stubBackend{name: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names = %v", got)
	}
	b, err := r.Lookup("a")
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "a" {
		t.Errorf("Lookup returned %q", b.Name())
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	_, err := NewRegistry(&stubBackend{name: "a"}, &stubBackend{name: "a"})
	if err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistry_EmptyName(t *testing.T) {
	r, _ := NewRegistry()
	if err := r.Register(&stubBackend{}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestRegistry_Unknown(t *testing.T) {
	r, _ := NewRegistry()
	_, err := r.Lookup("ansible")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
	if _, err := r.Execute(context.Background(), "ansible", Document{}); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("Execute err = %v", err)
	}
}

func TestRegistry_ExecutePolymorphic(t *testing.T) {
	stub := &stubBackend{name: "stub"}
	r, _ := NewRegistry(stub)

	res, err := r.Execute(context.Background(), "stub", Document{"message": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Successful || len(res.Output) != 1 || res.Output[0] != "hi" {
		t.Errorf("result = %+v", res)
	}

	_, err = r.Execute(context.Background(), "stub", Document{})
	var viol *schema.Violation
	if !errors.As(err, &viol) {
		t.Fatalf("err = %v, want schema violation", err)
	}
	if stub.calls != 1 {
		t.Errorf("calls = %d, want 1", stub.calls)
	}
}

func TestNewResult_Copies(t *testing.T) {
	out := []string{"a"}
	res := NewResult(false, out, []string{"e"})
	out[0] = "changed"
	if res.Output[0] != "a" {
		t.Error("Result aliases caller slice")
	}
	empty := NewResult(true, nil, nil)
	if empty.Output == nil || empty.Errors == nil {
		t.Error("nil accumulators should become empty slices")
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")
	me := &MaterializationError{Index: 2, Err: cause}
	if !errors.Is(me, cause) {
		t.Error("MaterializationError should unwrap to cause")
	}
	if me.Error() != "materialize play 2: boom" {
		t.Errorf("Error() = %q", me.Error())
	}
	ce := &ConfigurationError{Param: "runner_binary", Reason: "not set"}
	if ce.Error() != "configuration: runner_binary: not set" {
		t.Errorf("Error() = %q", ce.Error())
	}
}
