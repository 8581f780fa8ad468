// Package config loads jiav.yaml, the runtime configuration shared by the
// CLI and the MCP server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/jiav/pkg/backend"
	"github.com/ormasoftchile/jiav/pkg/backends/ansible"
	"github.com/ormasoftchile/jiav/pkg/backends/shell"
	"github.com/ormasoftchile/jiav/pkg/engine"
	"github.com/ormasoftchile/jiav/pkg/logging"
	"github.com/ormasoftchile/jiav/pkg/trace"
)

// FileName is the configuration file discovered by Discover.
const FileName = "jiav.yaml"

// Environment overrides, applied after the file is read.
const (
	EnvRunnerBinary  = "JIAV_RUNNER_BINARY"
	EnvAnsibleBinary = "JIAV_ANSIBLE_BINARY"
	EnvLogLevel      = "JIAV_LOG_LEVEL"
)

// Config is the parsed jiav.yaml.
type Config struct {
	Log     Log     `yaml:"log"`
	Ansible Ansible `yaml:"ansible"`
	Shell   Shell   `yaml:"shell"`
	Trace   Trace   `yaml:"trace"`

	// Path is the file the config was loaded from; empty for defaults.
	Path string `yaml:"-"`
}

type Log struct {
	Level  string         `yaml:"level"`
	Format logging.Format `yaml:"format"`
}

// Ansible configures the ansible backend.
type Ansible struct {
	RunnerBinary  string        `yaml:"runner_binary"`
	AnsibleBinary string        `yaml:"ansible_binary"`
	Verbosity     int           `yaml:"verbosity"`
	Timeout       time.Duration `yaml:"timeout"`
	EventBuffer   int           `yaml:"event_buffer"`
	TempDir       string        `yaml:"temp_dir"`
}

type Shell struct {
	Shell   string        `yaml:"shell"`
	Timeout time.Duration `yaml:"timeout"`
}

// Trace enables the JSONL execution trace when Path is set.
type Trace struct {
	Path    string   `yaml:"path"`
	Secrets []string `yaml:"secrets"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Log: Log{Level: "info", Format: logging.FormatConsole},
		Ansible: Ansible{
			RunnerBinary: engine.DefaultRunnerBinary,
			Verbosity:    ansible.DefaultVerbosity,
			EventBuffer:  engine.DefaultBuffer,
		},
		Shell: Shell{Shell: shell.DefaultShell, Timeout: shell.DefaultTimeout},
	}
}

// Load reads a config file over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes config YAML. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover walks up from start looking for jiav.yaml. Without one it
// returns Default with environment overrides applied.
func Discover(start string) (*Config, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cfg := Default()
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv
// outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRunnerBinary); ok && v != "" {
		c.Ansible.RunnerBinary = v
	}
	if v, ok := lookup(EnvAnsibleBinary); ok && v != "" {
		c.Ansible.AnsibleBinary = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate reports the first invalid setting as a ConfigurationError.
func (c *Config) Validate() error {
	switch {
	case c.Ansible.Verbosity < 0 || c.Ansible.Verbosity > 5:
		return &backend.ConfigurationError{Param: "ansible.verbosity", Reason: "must be between 0 and 5, got " + strconv.Itoa(c.Ansible.Verbosity)}
	case c.Ansible.EventBuffer < 0:
		return &backend.ConfigurationError{Param: "ansible.event_buffer", Reason: "must not be negative"}
	case c.Ansible.Timeout < 0:
		return &backend.ConfigurationError{Param: "ansible.timeout", Reason: "must not be negative"}
	case c.Shell.Shell == "":
		return &backend.ConfigurationError{Param: "shell.shell", Reason: "must not be empty"}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &backend.ConfigurationError{Param: "log.level", Reason: err.Error()}
	}
	return nil
}

// Registry builds the backend registry described by c. tw may be nil.
func (c *Config) Registry(log zerolog.Logger, tw *trace.Writer) (*backend.Registry, error) {
	runner := &engine.RunnerEngine{
		Binary:  c.Ansible.RunnerBinary,
		Timeout: c.Ansible.Timeout,
		Log:     log.With().Str("engine", "ansible-runner").Logger(),
	}
	return backend.NewRegistry(
		ansible.New(ansible.Options{
			Engine:        runner,
			TempDir:       c.Ansible.TempDir,
			AnsibleBinary: c.Ansible.AnsibleBinary,
			Verbosity:     c.Ansible.Verbosity,
			EventBuffer:   c.Ansible.EventBuffer,
			Log:           log,
			Trace:         tw,
		}),
		shell.New(shell.Options{
			Shell:   c.Shell.Shell,
			Timeout: c.Shell.Timeout,
			Log:     log,
			Trace:   tw,
		}),
	)
}
