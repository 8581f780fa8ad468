// Package trace implements an append-only JSONL audit trail of executions.
package trace

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart          EventType = "run_start"
	EventRunComplete       EventType = "run_complete"
	EventWorkspaceOpen     EventType = "workspace_open"
	EventWorkspaceReleased EventType = "workspace_released"
	EventPlaybookWritten   EventType = "playbook_written"
	EventEngineEvent       EventType = "engine_event"
	EventStepRejected      EventType = "step_rejected"
)

// Event is a single trace event written to the JSONL stream. PrevHash is
// the SHA-256 of the previous line, or Genesis for the first one.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	PrevHash  string         `json:"prev_hash"`
	Data      map[string]any `json:"data,omitempty"`
}

// Genesis is the prev_hash of the first event in a trace file.
var Genesis = strings.Repeat("0", 64)

// Writer writes trace events to an append-only JSONL stream. A nil *Writer
// discards everything, so callers never need to check.
type Writer struct {
	mu         sync.Mutex
	w          io.Writer
	closer     io.Closer
	runID      string
	prevHash   string   // chain head; only meaningful on the root writer
	secretVars []string // env var names whose values should be redacted
	parent     *Writer  // set by WithRun; owns the stream lock and chain head
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{
		w:        w,
		runID:    runID,
		prevHash: Genesis,
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file,
// continuing the hash chain of any events already in it.
func NewFileWriter(path, runID string) (*Writer, error) {
	head, err := chainHead(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f, runID)
	tw.closer = f
	tw.prevHash = head
	return tw, nil
}

// chainHead hashes the last non-empty line of an existing trace file.
func chainHead(path string) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Genesis, nil
	}
	if err != nil {
		return "", fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	head := Genesis
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), maxLine)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			head = hashLine(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read trace file: %w", err)
	}
	return head, nil
}

func hashLine(line []byte) string {
	h := sha256.Sum256(line)
	return hex.EncodeToString(h[:])
}

// WithRun returns a writer sharing the same stream under another run id.
func (tw *Writer) WithRun(runID string) *Writer {
	if tw == nil {
		return nil
	}
	root := tw
	if tw.parent != nil {
		root = tw.parent
	}
	root.mu.Lock()
	defer root.mu.Unlock()
	return &Writer{w: tw.w, runID: runID, secretVars: tw.secretVars, parent: root}
}

// SetSecrets configures the writer to redact values of the given env vars from trace output.
func (tw *Writer) SetSecrets(envVars []string) {
	if tw == nil {
		return
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.secretVars = envVars
}

// RedactSecrets replaces secret values in a string with "<REDACTED>".
func (tw *Writer) RedactSecrets(s string) string {
	if tw == nil {
		return s
	}
	for _, envVar := range tw.secretVars {
		if val := os.Getenv(envVar); val != "" {
			s = strings.ReplaceAll(s, val, "<REDACTED>")
		}
	}
	return s
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	if tw == nil {
		return nil
	}
	root := tw
	if tw.parent != nil {
		root = tw.parent
	}
	root.mu.Lock()
	defer root.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		PrevHash:  root.prevHash,
		Data:      tw.redact(data),
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(evt); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if _, err := tw.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}
	root.prevHash = hashLine(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return nil
}

// Close closes the underlying file for writers created by NewFileWriter.
func (tw *Writer) Close() error {
	if tw == nil || tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}

func (tw *Writer) redact(data map[string]any) map[string]any {
	if len(tw.secretVars) == 0 || data == nil {
		return data
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = tw.redactValue(v)
	}
	return out
}

// redactValue walks maps and slices of any named type, since step documents
// decoded from YAML carry their container types into nested values.
func (tw *Writer) redactValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return tw.RedactSecrets(val)
	case map[string]any:
		return tw.redact(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return tw.RedactSecrets(rv.String())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = tw.redactValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = tw.redactValue(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}

// EmitRunStart emits a run_start event.
func (tw *Writer) EmitRunStart(backend string, step map[string]any) error {
	return tw.Emit(EventRunStart, map[string]any{
		"backend": backend,
		"step":    step,
	})
}

// EmitStepRejected emits a step_rejected event for a step that never ran.
func (tw *Writer) EmitStepRejected(reason string, err error) error {
	return tw.Emit(EventStepRejected, map[string]any{
		"reason": reason,
		"error":  err.Error(),
	})
}

// EmitWorkspaceOpen emits a workspace_open event.
func (tw *Writer) EmitWorkspaceOpen(playbook, dir string) error {
	return tw.Emit(EventWorkspaceOpen, map[string]any{
		"playbook": playbook,
		"dir":      dir,
	})
}

// EmitWorkspaceReleased emits a workspace_released event.
func (tw *Writer) EmitWorkspaceReleased(dir string, err error) error {
	data := map[string]any{"dir": dir}
	if err != nil {
		data["warning"] = err.Error()
	}
	return tw.Emit(EventWorkspaceReleased, data)
}

// EmitPlaybookWritten emits a playbook_written event.
func (tw *Writer) EmitPlaybookWritten(path string, plays int) error {
	return tw.Emit(EventPlaybookWritten, map[string]any{
		"path":  path,
		"plays": plays,
	})
}

// EmitEngineEvent emits an engine_event event.
func (tw *Writer) EmitEngineEvent(kind, host, action string, result map[string]any) error {
	data := map[string]any{
		"event":  kind,
		"host":   host,
		"action": action,
	}
	if result != nil {
		data["result"] = result
	}
	return tw.Emit(EventEngineEvent, data)
}

// EmitRunComplete emits a run_complete event.
func (tw *Writer) EmitRunComplete(successful bool, outputLines, errorLines int, duration time.Duration) error {
	status := "successful"
	if !successful {
		status = "failed"
	}
	return tw.Emit(EventRunComplete, map[string]any{
		"status":   status,
		"output":   outputLines,
		"errors":   errorLines,
		"duration": duration.String(),
	})
}
