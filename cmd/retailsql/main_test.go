package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leapstack-labs/retailsql/internal/cli"
	"github.com/leapstack-labs/retailsql/pkg/adapter"
)

func TestVersionCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	if err != nil {
		t.Errorf("version command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "retailsql") {
		t.Errorf("version output should contain 'retailsql', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	output := buf.String()
	expectedCommands := []string{"query", "template", "analyze", "history", "health", "serve"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func TestAdaptersRegistered(t *testing.T) {
	for _, name := range []string{"postgres", "duckdb", "sqlite", "mysql"} {
		if !adapter.IsRegistered(name) {
			t.Errorf("adapter %q is not registered", name)
		}
	}
}
