// Package main provides the jiav-mcp binary: an MCP server over stdio that
// lets agents validate and execute jiav manifests.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/jiav/pkg/config"
	"github.com/ormasoftchile/jiav/pkg/logging"
	jmcp "github.com/ormasoftchile/jiav/pkg/mcp"
	"github.com/ormasoftchile/jiav/pkg/trace"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Discover(".")
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr as JSON.
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: logging.FormatJSON, Writer: os.Stderr})
	if err != nil {
		return err
	}

	var tw *trace.Writer
	if cfg.Trace.Path != "" {
		tw, err = trace.NewFileWriter(cfg.Trace.Path, "")
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}
		defer tw.Close()
		tw.SetSecrets(cfg.Trace.Secrets)
	}

	reg, err := cfg.Registry(log, tw)
	if err != nil {
		return err
	}
	s := jmcp.NewServer(version, &jmcp.Handlers{Registry: reg, Log: log})
	return server.ServeStdio(s)
}
