package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/opensourceways/sbom-tracer/internal/logging"
)

// ProcessFinder lists processes whose command line contains a substring.
type ProcessFinder interface {
	FindByCmdline(substr string) ([]int, error)
}

// Signaller delivers a signal to processes.
type Signaller interface {
	Signal(ctx context.Context, pids []int, sig unix.Signal) error
}

// KillSignaller signals directly, or through sudo kill for daemons owned by root.
type KillSignaller struct {
	Sudo bool
}

// Signal sends sig to every pid. Processes that are already gone are ignored.
func (k KillSignaller) Signal(ctx context.Context, pids []int, sig unix.Signal) error {
	if k.Sudo {
		args := []string{"-n", "kill", "-" + strconv.Itoa(int(sig))}
		for _, pid := range pids {
			args = append(args, strconv.Itoa(pid))
		}
		// kill exits non-zero when some pid vanished in between; the next scan decides.
		if err := exec.CommandContext(ctx, "sudo", args...).Run(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return fmt.Errorf("running sudo kill: %w", err)
			}
		}
		return nil
	}

	var errs []error
	for _, pid := range pids {
		if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("signalling %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// Terminator stops every process carrying a tag: a bounded number of
// polite rounds, then forceful kills until none remain.
type Terminator struct {
	Finder    ProcessFinder
	Signaller Signaller
	Rounds    int
	Interval  time.Duration
	Logger    *zap.Logger
	// Sleep waits between rounds; nil means a timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Stop returns once no process carries tag. Zero matches on the first scan
// return immediately without signalling.
func (t *Terminator) Stop(ctx context.Context, tag string) error {
	for round := 1; round <= t.Rounds; round++ {
		done, err := t.round(ctx, tag, unix.SIGINT, round)
		if done || err != nil {
			return err
		}
	}
	for round := 1; ; round++ {
		done, err := t.round(ctx, tag, unix.SIGKILL, round)
		if done || err != nil {
			return err
		}
	}
}

// round signals the current matches and waits. done means nothing matched.
func (t *Terminator) round(ctx context.Context, tag string, sig unix.Signal, n int) (bool, error) {
	pids, err := t.Finder.FindByCmdline(tag)
	if err != nil {
		return false, fmt.Errorf("scanning for daemons: %w", err)
	}
	if len(pids) == 0 {
		t.Logger.Info("daemons stopped")
		return true, nil
	}

	t.Logger.Info("stopping daemons",
		zap.String("signal", unix.SignalName(sig)),
		zap.Int("round", n),
		zap.Ints("pids", pids),
		logging.Count(len(pids)))
	if err := t.Signaller.Signal(ctx, pids, sig); err != nil {
		t.Logger.Warn("signalling daemons", zap.Error(err))
	}
	return false, t.sleep(ctx, t.Interval)
}

func (t *Terminator) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleep != nil {
		return t.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}
