package h2

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/opensourceways/sbom-tracer/internal/bpf"
	"github.com/opensourceways/sbom-tracer/internal/jsonl"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// headerTableSize is the HPACK dynamic table size a fresh connection starts with.
const headerTableSize = 4096

// ErrPadding is returned when a HEADERS frame's padding exceeds its payload.
var ErrPadding = errors.New("header block padding exceeds frame payload")

// RequestRecord is one completed request rebuilt from a capture.
// Data keeps the decoded header fields in wire order as [name, value] pairs.
type RequestRecord struct {
	Cmd  string      `json:"cmd"`
	Pid  uint32      `json:"pid"`
	Ppid uint32      `json:"ppid"`
	Data [][2]string `json:"data"`
}

// ParentResolver looks up the parent of a live process, returning 0 when unknown.
type ParentResolver func(pid uint32) uint32

// Reconstructor turns capture events into request records.
type Reconstructor struct {
	out    *jsonl.Writer
	parent ParentResolver
	logger *zap.Logger
}

// NewReconstructor writes records to out. parent is consulted when the
// kernel reported no parent pid.
func NewReconstructor(out *jsonl.Writer, parent ParentResolver, logger *zap.Logger) *Reconstructor {
	return &Reconstructor{out: out, parent: parent, logger: logger}
}

// HandleCapture reconstructs one event and writes its records.
func (r *Reconstructor) HandleCapture(event *bpf.CaptureEvent) error {
	for _, rec := range r.Reconstruct(event) {
		if err := r.out.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Reconstruct returns the requests completed within a single capture.
func (r *Reconstructor) Reconstruct(event *bpf.CaptureEvent) []RequestRecord {
	buf := event.Payload
	if !event.Captured {
		buf = nil
	}
	buf = bytes.TrimPrefix(buf, []byte(http2.ClientPreface))

	// One compression context spans every header block in the capture.
	dec := hpack.NewDecoder(headerTableSize, nil)

	var records []RequestRecord
	for off := 0; len(buf)-off >= FrameHeaderLen; {
		frame, err := ParseFrameHeader(buf, off)
		if err != nil {
			r.logger.Debug("abandoning capture", zap.Uint32("pid", event.Pid), zap.Int("offset", off), zap.Error(err))
			break
		}
		if frame.End() > len(buf) {
			// Declared length runs past the captured bytes.
			break
		}

		if frame.IsRequestEnd() {
			fields, err := decodeHeaderBlock(dec, frame, buf[frame.Offset:frame.End()])
			if err != nil {
				r.logger.Debug("abandoning capture", zap.Uint32("pid", event.Pid), zap.Stringer("type", frame.Type), zap.Error(err))
				break
			}
			records = append(records, RequestRecord{
				Cmd:  event.Command(),
				Pid:  event.Pid,
				Ppid: r.resolveParent(event),
				Data: fields,
			})
		}

		off = frame.End()
	}
	return records
}

func (r *Reconstructor) resolveParent(event *bpf.CaptureEvent) uint32 {
	if event.Ppid > 0 || r.parent == nil {
		return event.Ppid
	}
	return r.parent(event.Pid)
}

// decodeHeaderBlock strips HEADERS padding and priority fields, then decodes
// the block with dec, whose dynamic table carries over between blocks.
func decodeHeaderBlock(dec *hpack.Decoder, frame Frame, payload []byte) ([][2]string, error) {
	block := payload
	if frame.Type == FrameHeaders {
		var padLen int
		if frame.Has(FlagPadded) {
			if len(block) < 1 {
				return nil, ErrPadding
			}
			padLen = int(block[0])
			block = block[1:]
		}
		if frame.Has(FlagPriority) {
			if len(block) < 5 {
				return nil, fmt.Errorf("priority fields truncated: %d bytes", len(block))
			}
			block = block[5:]
		}
		if padLen > len(block) {
			return nil, ErrPadding
		}
		block = block[:len(block)-padLen]
	}

	fields, err := dec.DecodeFull(block)
	if err != nil {
		return nil, fmt.Errorf("decoding header block: %w", err)
	}

	out := make([][2]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, [2]string{f.Name, f.Value})
	}
	return out, nil
}
