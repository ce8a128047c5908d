package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		info    BuildInfo
		wantOut []string
		notOut  []string
		wantErr bool
	}{
		{
			name:    "default version",
			info:    BuildInfo{Version: "0.1.0", Commit: "unknown"},
			wantOut: []string{"retailsql v0.1.0", "SQL gateway", "adapters: ", "sqlite"},
			notOut:  []string{"commit"},
		},
		{
			name:    "release build",
			info:    BuildInfo{Version: "1.2.3", Commit: "abc1234", Date: "2026-10-01"},
			wantOut: []string{"retailsql v1.2.3", "commit abc1234, built 2026-10-01"},
		},
		{
			name:    "dev version",
			info:    BuildInfo{Version: "dev"},
			wantOut: []string{"retailsql vdev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewVersionCommand(tt.info)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)

			err := cmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			output := buf.String()
			for _, want := range tt.wantOut {
				if !strings.Contains(output, want) {
					t.Errorf("output should contain %q, got: %s", want, output)
				}
			}
			for _, unwanted := range tt.notOut {
				if strings.Contains(output, unwanted) {
					t.Errorf("output should not contain %q, got: %s", unwanted, output)
				}
			}
		})
	}
}

func TestVersionCommandMetadata(t *testing.T) {
	cmd := NewVersionCommand(BuildInfo{Version: "test"})

	if cmd.Use != "version" {
		t.Errorf("Use = %q, want %q", cmd.Use, "version")
	}

	if cmd.Short == "" {
		t.Error("Short should not be empty")
	}

	if cmd.Long == "" {
		t.Error("Long should not be empty")
	}
}
