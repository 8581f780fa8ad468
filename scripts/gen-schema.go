//go:build ignore

// Writes the step schema of every built-in backend to schemas/.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/jiav/pkg/backends/ansible"
	"github.com/ormasoftchile/jiav/pkg/backends/shell"
	"github.com/ormasoftchile/jiav/pkg/schema"
)

func main() {
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	for name, v := range map[string]*schema.Validator{
		ansible.Name: ansible.Schema,
		shell.Name:   shell.Schema,
	} {
		path := filepath.Join("schemas", name+"-step.json")
		if err := os.WriteFile(path, v.JSON(), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote", path)
	}
}
