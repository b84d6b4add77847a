package correlate

import (
	"errors"
	"fmt"
	"slices"
)

// ExecutionEvent is one process start reported by the execution tracer.
type ExecutionEvent struct {
	Pid          int    `json:"pid"`
	Ppid         int    `json:"ppid"`
	Cmd          string `json:"cmd"`
	FullCmd      string `json:"full_cmd"`
	Cwd          string `json:"cwd"`
	AncestorPids []int  `json:"ancestor_pids"`
}

// ErrInvalidEvent marks an event missing a required field.
var ErrInvalidEvent = errors.New("invalid execution event")

// Validate checks that every required field is present and non-empty.
// The working directory is optional.
func (e *ExecutionEvent) Validate() error {
	switch {
	case e.Pid == 0:
		return fmt.Errorf("%w: missing pid", ErrInvalidEvent)
	case e.Ppid == 0:
		return fmt.Errorf("%w: missing ppid", ErrInvalidEvent)
	case e.Cmd == "":
		return fmt.Errorf("%w: missing cmd", ErrInvalidEvent)
	case e.FullCmd == "":
		return fmt.Errorf("%w: missing full_cmd", ErrInvalidEvent)
	case len(e.AncestorPids) == 0:
		return fmt.Errorf("%w: missing ancestor_pids", ErrInvalidEvent)
	}
	return nil
}

// HasAncestor reports whether pid is among the event's ancestors.
func (e *ExecutionEvent) HasAncestor(pid int) bool {
	return slices.Contains(e.AncestorPids, pid)
}
