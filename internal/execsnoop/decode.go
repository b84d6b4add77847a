package execsnoop

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// linux/cn_proc.h
const (
	cnIdxProc         = 0x1
	cnValProc         = 0x1
	procCnMcastListen = 0x1

	procEventFork = 0x00000001
	procEventExec = 0x00000002
	procEventExit = 0x80000000
)

// Sizes of struct cn_msg and the fixed part of struct proc_event.
const (
	cnMsgLen       = 20
	procEventHdrLn = 16
)

// ErrShortMessage is returned for connector payloads too small for their event.
var ErrShortMessage = errors.New("connector message too short")

// Kind is the proc connector event type.
type Kind uint32

const (
	KindOther Kind = iota
	KindFork
	KindExec
	KindExit
)

// ProcEvent is the part of a proc connector event the tracer uses.
type ProcEvent struct {
	Kind Kind
	// Pid and Tgid identify the subject: the child for forks.
	Pid  int
	Tgid int
	// ParentTgid is only set for forks.
	ParentTgid int
}

// IsProcess reports whether the subject is a process rather than a thread.
func (e ProcEvent) IsProcess() bool {
	return e.Pid == e.Tgid
}

// DecodeProcEvent parses the data of one NLMSG_DONE connector message.
func DecodeProcEvent(data []byte) (ProcEvent, error) {
	if len(data) < cnMsgLen+procEventHdrLn {
		return ProcEvent{}, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}
	what := binary.LittleEndian.Uint32(data[cnMsgLen:])
	body := data[cnMsgLen+procEventHdrLn:]

	u32 := func(off int) int { return int(binary.LittleEndian.Uint32(body[off:])) }

	switch what {
	case procEventFork:
		// parent_pid, parent_tgid, child_pid, child_tgid
		if len(body) < 16 {
			return ProcEvent{}, fmt.Errorf("%w: fork body %d bytes", ErrShortMessage, len(body))
		}
		return ProcEvent{Kind: KindFork, ParentTgid: u32(4), Pid: u32(8), Tgid: u32(12)}, nil
	case procEventExec:
		if len(body) < 8 {
			return ProcEvent{}, fmt.Errorf("%w: exec body %d bytes", ErrShortMessage, len(body))
		}
		return ProcEvent{Kind: KindExec, Pid: u32(0), Tgid: u32(4)}, nil
	case procEventExit:
		if len(body) < 8 {
			return ProcEvent{}, fmt.Errorf("%w: exit body %d bytes", ErrShortMessage, len(body))
		}
		return ProcEvent{Kind: KindExit, Pid: u32(0), Tgid: u32(4)}, nil
	default:
		return ProcEvent{Kind: KindOther}, nil
	}
}
