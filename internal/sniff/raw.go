package sniff

import (
	"time"

	"github.com/opensourceways/sbom-tracer/internal/bpf"
	"github.com/opensourceways/sbom-tracer/internal/jsonl"
)

// RawRecord is one captured TLS write as written by the raw sniffer.
type RawRecord struct {
	Time        string `json:"time"`
	TimestampNs uint64 `json:"timestamp_ns"`
	Cmd         string `json:"cmd"`
	Pid         uint32 `json:"pid"`
	Ppid        uint32 `json:"ppid"`
	Tid         uint32 `json:"tid"`
	UID         uint32 `json:"uid"` //nolint:revive // Matches kernel struct field naming
	Len         uint32 `json:"len"`
	Captured    bool   `json:"captured"`
	Data        string `json:"data"`
}

// Clock places monotonic timestamps on the wall clock.
type Clock interface {
	MonotonicToWallClock(monotonicNanos uint64) time.Time
}

// RawDumper writes every capture event as a RawRecord line.
type RawDumper struct {
	out   *jsonl.Writer
	clock Clock
}

// NewRawDumper creates a dumper writing to out.
func NewRawDumper(out *jsonl.Writer, clock Clock) *RawDumper {
	return &RawDumper{out: out, clock: clock}
}

// HandleCapture implements eventstream.Handler.
func (d *RawDumper) HandleCapture(event *bpf.CaptureEvent) error {
	return d.out.Write(RawRecord{
		Time:        d.clock.MonotonicToWallClock(event.TimestampNs).UTC().Format(time.RFC3339Nano),
		TimestampNs: event.TimestampNs,
		Cmd:         event.Command(),
		Pid:         event.Pid,
		Ppid:        event.Ppid,
		Tid:         event.Tid,
		UID:         event.UID,
		Len:         event.Len,
		Captured:    event.Captured,
		Data:        Printable(event.Payload),
	})
}

// Printable keeps printable ASCII and common whitespace, replacing every
// other byte with '.'.
func Printable(payload []byte) string {
	out := make([]byte, len(payload))
	for i, b := range payload {
		switch {
		case b == '\n' || b == '\r' || b == '\t':
			out[i] = b
		case b >= 0x20 && b < 0x7f:
			out[i] = b
		default:
			out[i] = '.'
		}
	}
	return string(out)
}
