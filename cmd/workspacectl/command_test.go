package main

import "testing"

func TestParseArgs(t *testing.T) {
	cases := []struct {
		name          string
		args          []string
		wantCmd       string
		wantCmdUsage  bool
		wantExit      bool
	}{
		{name: "no args", args: []string{"workspacectl"}, wantExit: true},
		{name: "bare command", args: []string{"workspacectl", "check"}, wantCmd: "check"},
		{name: "top-level help", args: []string{"workspacectl", "-h"}, wantExit: true},
		{name: "help for command", args: []string{"workspacectl", "help", "edit"}, wantCmd: "edit", wantCmdUsage: true},
		{name: "command with flags", args: []string{"workspacectl", "update", "-v"}, wantCmd: "update"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, printUsage, exit := parseArgs(tc.args)
			if cmd != tc.wantCmd {
				t.Errorf("cmd = %q, want %q", cmd, tc.wantCmd)
			}
			if printUsage != tc.wantCmdUsage {
				t.Errorf("printUsage = %v, want %v", printUsage, tc.wantCmdUsage)
			}
			if exit != tc.wantExit {
				t.Errorf("exit = %v, want %v", exit, tc.wantExit)
			}
		})
	}
}

func TestCLIConfigRunUnknownCommand(t *testing.T) {
	var out, errOut buffer
	c := &CLIConfig{
		Args:       []string{"workspacectl", "bogus"},
		Stdout:     &out,
		Stderr:     &errOut,
		WorkingDir: t.TempDir(),
	}
	if code := c.Run(); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

// buffer is a minimal io.Writer so these tests don't need bytes.Buffer's
// extra surface.
type buffer struct{ data []byte }

func (b *buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
