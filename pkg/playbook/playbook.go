// Package playbook writes a step's plays to disk in the engine's YAML
// playbook format.
package playbook

import (
	"bytes"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/jiav/pkg/backend"
)

// Play is one engine-native automation unit: a host selector plus tasks.
// Its content is opaque to this package.
type Play map[string]any

// Writer appends plays to a playbook file. Each play is encoded as a
// one-item YAML sequence, so the file is always a single sequence document
// holding every play written so far, in order.
type Writer struct {
	f     io.WriteSeeker
	log   zerolog.Logger
	plays int
	ready bool
}

// NewWriter returns a Writer appending to f.
func NewWriter(f io.WriteSeeker, log zerolog.Logger) *Writer {
	return &Writer{f: f, log: log}
}

// Ready reports whether the file holds at least one play and the last write
// succeeded.
func (w *Writer) Ready() bool { return w.ready }

// Plays is the number of plays written.
func (w *Writer) Plays() int { return w.plays }

// WritePlay encodes play and appends it. The play is encoded in full before
// anything is written, so a failed play leaves no partial bytes. After a
// successful write the stream is rewound so a reader sees the whole file.
func (w *Writer) WritePlay(play Play) error {
	data, err := encode(play)
	if err != nil {
		w.ready = false
		return err
	}
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		w.ready = false
		return fmt.Errorf("seek end: %w", err)
	}
	if _, err := w.f.Write(data); err != nil {
		w.ready = false
		return fmt.Errorf("write play: %w", err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.ready = false
		return fmt.Errorf("rewind: %w", err)
	}
	w.plays++
	w.ready = true
	w.log.Debug().Int("play", w.plays-1).Int("bytes", len(data)).Msg("play written")
	return nil
}

// Materialize writes plays to f in order and stops at the first failure,
// which is returned as a *backend.MaterializationError naming the play.
func Materialize(f io.WriteSeeker, plays []Play, log zerolog.Logger) error {
	w := NewWriter(f, log)
	for i, play := range plays {
		if err := w.WritePlay(play); err != nil {
			log.Error().Err(err).Int("play", i).Msg("failed to write play")
			return &backend.MaterializationError{Index: i, Err: err}
		}
	}
	if !w.Ready() {
		return &backend.MaterializationError{Index: 0, Err: fmt.Errorf("playbook has no plays")}
	}
	return nil
}

func encode(play Play) (data []byte, err error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode([]Play{play}); err != nil {
		return nil, fmt.Errorf("encode play: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode play: %w", err)
	}
	return buf.Bytes(), nil
}
