// Package workspace allocates the transient playbook file and private
// engine directory used by a single execution.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Workspace is the file and directory pair owned by one execution. Release
// removes both exactly once, however many times it is called.
type Workspace struct {
	file *os.File
	dir  string
	log  zerolog.Logger

	once     sync.Once
	released bool
	mu       sync.Mutex
}

// Open creates a temporary playbook file and a temporary private directory
// under root (os.TempDir when empty). On failure nothing is left behind.
func Open(root string, log zerolog.Logger) (*Workspace, error) {
	f, err := os.CreateTemp(root, "jiav-playbook-*.yml")
	if err != nil {
		return nil, fmt.Errorf("create playbook file: %w", err)
	}
	dir, err := os.MkdirTemp(root, "jiav-private-*")
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("create private dir: %w", err)
	}
	log = log.With().Str("workspace", dir).Logger()
	log.Debug().Str("playbook", f.Name()).Msg("workspace opened")
	return &Workspace{file: f, dir: dir, log: log}, nil
}

// File is the open playbook file. It is closed by Release.
func (w *Workspace) File() *os.File { return w.file }

// PlaybookPath is the path of the playbook file.
func (w *Workspace) PlaybookPath() string { return w.file.Name() }

// Dir is the engine's private working directory.
func (w *Workspace) Dir() string { return w.dir }

// Released reports whether Release has run.
func (w *Workspace) Released() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

// Release removes the directory, then closes and removes the file. Removal
// failures are logged and returned joined, but callers treat them as
// warnings; they never change an execution's result. Only the first call
// does any work; later calls return nil.
func (w *Workspace) Release() error {
	var err error
	w.once.Do(func() {
		err = w.release()
		w.mu.Lock()
		w.released = true
		w.mu.Unlock()
	})
	return err
}

func (w *Workspace) release() error {
	var errs []error
	if err := os.RemoveAll(w.dir); err != nil {
		w.log.Warn().Err(err).Msg("failed to remove private dir")
		errs = append(errs, fmt.Errorf("remove private dir: %w", err))
	}
	name := w.file.Name()
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		w.log.Warn().Err(err).Str("playbook", name).Msg("failed to close playbook file")
		errs = append(errs, fmt.Errorf("close playbook file: %w", err))
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.log.Warn().Err(err).Str("playbook", name).Msg("failed to remove playbook file")
		errs = append(errs, fmt.Errorf("remove playbook file: %w", err))
	}
	w.log.Debug().Msg("workspace released")
	return errors.Join(errs...)
}
