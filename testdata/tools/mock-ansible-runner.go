// mock-ansible-runner is a test helper binary that mimics the parts of the
// ansible-runner CLI the engine relies on: JSON job events on stdout and a
// status file under <private_data_dir>/artifacts/<ident>/status.
//
// MOCK_RUNNER_MODE selects the outcome: ok (default), failed, sleep,
// silent-fail (failed status with no events), trap (waits for SIGTERM and
// leaves a "terminated" marker next to the status file).
//
//go:build ignore

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

func main() {
	args := os.Args[1:]
	if len(args) < 2 || args[0] != "run" {
		fmt.Fprintln(os.Stderr, "usage: mock-ansible-runner run <private_data_dir> -p <playbook> --ident <id> -j")
		os.Exit(64)
	}
	dir := args[1]
	var playbook, ident string
	for i := 2; i < len(args); i++ {
		switch args[i] {
		case "-p":
			i++
			playbook = args[i]
		case "--ident":
			i++
			ident = args[i]
		}
	}
	if _, err := os.Stat(playbook); err != nil {
		fmt.Fprintf(os.Stderr, "playbook: %v\n", err)
		os.Exit(1)
	}

	mode := os.Getenv("MOCK_RUNNER_MODE")
	// Plain text lines are interleaved with events on real runners too.
	fmt.Println("PLAY [localhost] ***")

	switch mode {
	case "sleep":
		time.Sleep(30 * time.Second)
		writeStatus(dir, ident, "successful")
	case "silent-fail":
		fmt.Fprintln(os.Stderr, "ERROR! the playbook could not be parsed")
		writeStatus(dir, ident, "failed")
		os.Exit(1)
	case "trap":
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM)
		select {
		case <-sig:
			writeFile(dir, ident, "terminated", "SIGTERM")
			os.Exit(143)
		case <-time.After(30 * time.Second):
			writeStatus(dir, ident, "successful")
		}
	case "failed":
		emit("runner_on_ok", "localhost", "ansible.builtin.setup", map[string]any{"changed": false})
		emit("runner_on_failed", "localhost", "ansible.builtin.shell", map[string]any{
			"rc":     1,
			"stderr": "\x1b[31mcommand not found\x1b[0m",
		})
		writeStatus(dir, ident, "failed")
		os.Exit(2)
	default:
		emit("playbook_on_start", "", "", nil)
		emit("runner_on_ok", "localhost", "ansible.builtin.shell", map[string]any{
			"rc":     0,
			"stdout": "root",
		})
		writeStatus(dir, ident, "successful")
	}
}

func emit(event, host, action string, res map[string]any) {
	data, _ := json.Marshal(map[string]any{
		"event": event,
		"event_data": map[string]any{
			"host":            host,
			"resolved_action": action,
			"res":             res,
		},
	})
	fmt.Println(string(data))
}

func writeStatus(dir, ident, status string) {
	writeFile(dir, ident, "status", status)
}

func writeFile(dir, ident, name, content string) {
	p := filepath.Join(dir, "artifacts", ident)
	if err := os.MkdirAll(p, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := os.WriteFile(filepath.Join(p, name), []byte(content), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
