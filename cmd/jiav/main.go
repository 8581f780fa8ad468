// Package main provides the jiav CLI:
//
//	jiav validate <manifest.yaml>
//	jiav exec <manifest.yaml>
//	jiav schema <backend> [--example]
//	jiav backends
//	jiav trace verify <trace.jsonl>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/jiav/pkg/backend"
	"github.com/ormasoftchile/jiav/pkg/config"
	"github.com/ormasoftchile/jiav/pkg/logging"
	"github.com/ormasoftchile/jiav/pkg/manifest"
	"github.com/ormasoftchile/jiav/pkg/report"
	"github.com/ormasoftchile/jiav/pkg/trace"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "jiav",
	Short:        "Validate and execute backend steps (ansible playbooks, shell commands)",
	SilenceUsage: true,
}

// env bundles what every command needs: a logger and the registry.
type env struct {
	log zerolog.Logger
	reg *backend.Registry
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logging.Format(logFormat)
	}
	return cfg, cfg.Validate()
}

func setup(cfg *config.Config, tw *trace.Writer) (*env, error) {
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry(log, tw)
	if err != nil {
		return nil, err
	}
	return &env{log: log, reg: reg}, nil
}

// newEnv loads config and builds the registry without tracing.
func newEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return setup(cfg, nil)
}

func renderOptions() report.Options {
	info, err := os.Stdout.Stat()
	opts := report.Options{Color: err == nil && info.Mode()&os.ModeCharDevice != 0}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols > 0 {
		opts.Width = cols
	}
	return opts
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [manifest.yaml]",
	Short: "Validate every step of a manifest against its backend schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	m, err := manifest.LoadFile(args[0])
	if err != nil {
		return err
	}
	if errs := manifest.Validate(e.reg, m); len(errs) > 0 {
		report.RenderErrors(os.Stderr, errs, report.Options{})
		return fmt.Errorf("validation failed with %d error(s)", len(errs))
	}
	fmt.Printf("✓ %s is valid (%d steps)\n", m.Name, len(m.Steps))
	return nil
}

// --- exec ---

var (
	execJSON     bool
	execTrace    string
	execFailFast bool
)

var execCmd = &cobra.Command{
	Use:   "exec [manifest.yaml]",
	Short: "Execute the steps of a manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	m, err := manifest.LoadFile(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// --trace wins over trace.path from the config file.
	tracePath := execTrace
	if tracePath == "" {
		tracePath = cfg.Trace.Path
	}
	var tw *trace.Writer
	if tracePath != "" {
		tw, err = trace.NewFileWriter(tracePath, "")
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}
		defer tw.Close()
		tw.SetSecrets(cfg.Trace.Secrets)
	}

	e, err := setup(cfg, tw)
	if err != nil {
		return err
	}
	if errs := manifest.Validate(e.reg, m); len(errs) > 0 {
		report.RenderErrors(os.Stderr, errs, report.Options{})
		return fmt.Errorf("validation failed with %d error(s)", len(errs))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []manifest.Option
	if execFailFast {
		opts = append(opts, manifest.WithFailFast())
	}
	r := manifest.Run(ctx, e.reg, m, e.log, opts...)

	if execJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return err
		}
	} else {
		report.Render(os.Stdout, r, renderOptions())
	}
	if !r.Successful() {
		return fmt.Errorf("manifest %s failed", m.Name)
	}
	return nil
}

// --- schema ---

var schemaExample bool

var schemaCmd = &cobra.Command{
	Use:   "schema [backend]",
	Short: "Export a backend's step JSON Schema to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		b, err := e.reg.Lookup(args[0])
		if err != nil {
			return err
		}
		if schemaExample {
			ex, ok := b.(backend.Exampler)
			if !ok {
				return fmt.Errorf("backend %q has no example step", b.Name())
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(map[string]any(ex.Example()))
		}
		fmt.Println(string(b.Schema().JSON()))
		return nil
	},
}

// --- backends ---

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List registered backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		for _, name := range e.reg.Names() {
			b, _ := e.reg.Lookup(name)
			fmt.Printf("%-10s %s\n", name, b.Schema().ID())
		}
		return nil
	},
}

// --- trace ---

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Trace file operations",
}

var traceVerifyCmd = &cobra.Command{
	Use:   "verify [trace.jsonl]",
	Short: "Verify trace file integrity (hash chain)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := trace.VerifyFile(args[0])
		if err != nil {
			return err
		}
		if !result.Valid {
			fmt.Printf("✗ Chain broken at event %d\n", result.BrokenAt)
			if result.Error != "" {
				fmt.Printf("  %s\n", result.Error)
			}
			return fmt.Errorf("chain verification failed")
		}
		fmt.Printf("✓ Chain integrity: %d events across %d runs, no breaks\n", result.EventCount, result.Runs)
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jiav %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to jiav.yaml (default: discovered from the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")

	execCmd.Flags().BoolVar(&execJSON, "json", false, "Output the report as JSON")
	execCmd.Flags().StringVar(&execTrace, "trace", "", "Write trace to JSONL file")
	execCmd.Flags().BoolVar(&execFailFast, "fail-fast", false, "Skip remaining steps after the first failure")

	schemaCmd.Flags().BoolVar(&schemaExample, "example", false, "Print an example step document as YAML instead of the schema")

	traceCmd.AddCommand(traceVerifyCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)
}
