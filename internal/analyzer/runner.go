package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner runs an external tool and returns its standard output.
type CommandRunner interface {
	Output(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner runs tools as child processes.
type ExecRunner struct{}

// Output runs name in dir. Standard error is kept for the error message.
func (ExecRunner) Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// toolName is the executable the traced command was started with.
func toolName(fullCmd, fallback string) string {
	if fields := strings.Fields(fullCmd); len(fields) > 0 {
		return fields[0]
	}
	return fallback
}
