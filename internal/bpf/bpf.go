// Package bpf describes the kernel/user contract of the TLS write capture program.
package bpf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"github.com/cilium/ebpf"
)

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -target amd64 -type tls_write_event tlsWrite ./tls_write.bpf.c -- -I. -I/usr/include

// TLSWriteEvent is the kernel record layout, generated from tls_write.h.
type TLSWriteEvent = tlsWriteTlsWriteEvent

// Sizes taken from the generated record.
const (
	TaskCommLen = len(TLSWriteEvent{}.Comm)
	MaxBufSize  = len(TLSWriteEvent{}.Buf)
	// HeaderSize is the offset of the payload inside a raw record.
	HeaderSize = int(unsafe.Offsetof(TLSWriteEvent{}.Buf))
)

// Program names inside the compiled object, one per buffer copy strategy.
const (
	ProgramUserRead   = "probe_tls_write_user"
	ProgramLegacyRead = "probe_tls_write_legacy"
)

// ErrShortRecord is returned when a raw sample cannot hold the fixed header.
var ErrShortRecord = errors.New("record shorter than capture header")

// CaptureEvent is one intercepted TLS write.
//
// Len is the size the application asked to write. Payload holds at most
// MaxBufSize bytes of it and is empty when the kernel could not read the
// buffer (Captured == false).
type CaptureEvent struct {
	TimestampNs uint64
	Pid         uint32
	Ppid        uint32
	Tid         uint32
	UID         uint32 //nolint:revive // Matches kernel struct field naming
	Len         uint32
	Captured    bool
	Comm        [TaskCommLen]byte
	Payload     []byte
}

// rawHeader is the fixed part of TLSWriteEvent. Samples carry only the
// written prefix of Buf, too short to decode into the generated type.
type rawHeader struct {
	TimestampNs uint64
	Pid         uint32
	Ppid        uint32
	Tid         uint32
	UID         uint32 //nolint:revive // Matches kernel struct field naming
	Len         uint32
	BufFilled   int32
	Comm        [TaskCommLen]byte
}

// Command returns the NUL-trimmed command name.
func (e *CaptureEvent) Command() string {
	return string(bytes.TrimRight(e.Comm[:], "\x00"))
}

// DecodeCaptureEvent parses a raw perf sample.
//
// The perf transport pads samples to 8 bytes, so the payload is cut to the
// declared write size (itself capped at MaxBufSize) rather than taken from
// the sample length.
func DecodeCaptureEvent(raw []byte) (*CaptureEvent, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(raw))
	}

	var hdr rawHeader
	if err := binary.Read(bytes.NewReader(raw[:HeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("parsing capture header: %w", err)
	}

	ev := &CaptureEvent{
		TimestampNs: hdr.TimestampNs,
		Pid:         hdr.Pid,
		Ppid:        hdr.Ppid,
		Tid:         hdr.Tid,
		UID:         hdr.UID,
		Len:         hdr.Len,
		Captured:    hdr.BufFilled == 1,
		Comm:        hdr.Comm,
	}
	if !ev.Captured {
		return ev, nil
	}

	size := min(int(hdr.Len), MaxBufSize)
	if avail := len(raw) - HeaderSize; size > avail {
		size = avail
	}
	ev.Payload = make([]byte, size)
	copy(ev.Payload, raw[HeaderSize:HeaderSize+size])
	return ev, nil
}

// Objects holds one loaded copy of the capture program and its maps.
type Objects struct {
	Program *ebpf.Program
	tlsWriteMaps
}

// Close releases the program and maps.
func (o *Objects) Close() error {
	var errs []error
	if o.Program != nil {
		errs = append(errs, o.Program.Close())
	}
	if o.Events != nil {
		errs = append(errs, o.Events.Close())
	}
	if o.Scratch != nil {
		errs = append(errs, o.Scratch.Close())
	}
	return errors.Join(errs...)
}

// LoadObjects loads the named program variant from the embedded object
// together with fresh maps, so a failed variant can be discarded whole.
// The other variant is never handed to the verifier.
func LoadObjects(program string, opts *ebpf.CollectionOptions) (*Objects, error) {
	spec, err := loadTlsWrite()
	if err != nil {
		return nil, fmt.Errorf("reading capture object: %w", err)
	}
	if _, ok := spec.Programs[program]; !ok {
		return nil, fmt.Errorf("unknown capture program %q", program)
	}
	for name := range spec.Programs {
		if name != program {
			delete(spec.Programs, name)
		}
	}

	if opts == nil {
		opts = &ebpf.CollectionOptions{}
	}
	coll, err := ebpf.NewCollectionWithOptions(spec, *opts)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", program, err)
	}
	defer coll.Close()

	objs := &Objects{Program: coll.DetachProgram(program)}
	if err := coll.Assign(&objs.tlsWriteMaps); err != nil {
		_ = objs.Close() //nolint:errcheck // Best-effort cleanup in error path
		return nil, fmt.Errorf("assigning %s maps: %w", program, err)
	}
	return objs, nil
}
