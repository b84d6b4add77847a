package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// ShellRunner runs the wrapper script and reports its exit code.
type ShellRunner interface {
	Run(ctx context.Context, dir, script string) (int, error)
}

// BashRunner runs `bash <script>` in dir attached to the caller's terminal.
type BashRunner struct{}

// Run returns the shell's exit code. A non-zero exit is not an error; the
// error is reserved for failing to run bash at all.
func (BashRunner) Run(ctx context.Context, dir, script string) (int, error) {
	cmd := exec.CommandContext(ctx, "bash", script)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1, fmt.Errorf("running shell: %w", err)
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}

// writeWrapper writes the user's shell text verbatim.
func writeWrapper(path, shell string) error {
	//nolint:gosec // The wrapper is run with bash, not executed directly
	if err := os.WriteFile(path, []byte(shell), 0o644); err != nil {
		return fmt.Errorf("writing wrapper script: %w", err)
	}
	return nil
}

// moveFile renames src to dst, copying across filesystems.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, unix.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close() //nolint:errcheck // Read-only file
	}()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close() //nolint:errcheck // Already failing
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
