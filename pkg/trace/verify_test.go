package trace

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestVerify_Valid(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriter(&buf, "manifest")
	child := root.WithRun("step-1")
	root.EmitRunStart("ansible", nil)
	child.EmitPlaybookWritten("/tmp/p.yml", 1)
	child.EmitRunComplete(true, 2, 0, time.Second)

	res, err := Verify(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.EventCount != 3 || res.BrokenAt != -1 {
		t.Errorf("result = %+v", res)
	}
	if res.Runs != 2 {
		t.Errorf("runs = %d, want 2", res.Runs)
	}
}

func TestVerify_Tampered(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "r")
	tw.EmitRunStart("shell", nil)
	tw.EmitRunComplete(true, 1, 0, time.Second)
	tw.EmitRunComplete(true, 1, 0, time.Second)

	lines := strings.SplitAfter(buf.String(), "\n")
	lines[1] = strings.Replace(lines[1], `"status":"successful"`, `"status":"failed"`, 1)
	res, err := Verify(strings.NewReader(strings.Join(lines, "")))
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.BrokenAt != 3 {
		t.Errorf("result = %+v, want break at 3", res)
	}
}

func TestVerify_InvalidJSON(t *testing.T) {
	res, err := Verify(strings.NewReader("{not json}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.BrokenAt != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestVerifyFile_ChainAcrossAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	for i := 0; i < 3; i++ {
		tw, err := NewFileWriter(path, "r")
		if err != nil {
			t.Fatal(err)
		}
		tw.EmitRunStart("shell", map[string]any{"command": "true"})
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
	}
	res, err := VerifyFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.EventCount != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestVerifyFile_Missing(t *testing.T) {
	if _, err := VerifyFile(filepath.Join(t.TempDir(), "nope.jsonl")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not exist", err)
	}
}
