package h2

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/opensourceways/sbom-tracer/internal/bpf"

	"golang.org/x/net/http2/hpack"
)

func frameHeader(length int, typ FrameType, flags uint8, streamID uint32) []byte {
	h := make([]byte, FrameHeaderLen)
	h[0] = byte(length >> 16)
	h[1] = byte(length >> 8)
	h[2] = byte(length)
	h[3] = byte(typ)
	h[4] = flags
	binary.BigEndian.PutUint32(h[5:], streamID)
	return h
}

func frame(typ FrameType, flags uint8, streamID uint32, payload []byte) []byte {
	return append(frameHeader(len(payload), typ, flags, streamID), payload...)
}

// headerBlock encodes fields with a fresh encoder, so the block never
// references dynamic table entries from earlier blocks.
func headerBlock(t *testing.T, fields ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	return encodeFields(t, hpack.NewEncoder(&buf), &buf, fields...)
}

// encodeFields encodes with enc, which writes into buf, and returns the
// bytes written for this block only.
func encodeFields(t *testing.T, enc *hpack.Encoder, buf *bytes.Buffer, fields ...string) []byte {
	t.Helper()
	buf.Reset()
	for i := 0; i+1 < len(fields); i += 2 {
		if err := enc.WriteField(hpack.HeaderField{Name: fields[i], Value: fields[i+1]}); err != nil {
			t.Fatalf("encoding header: %v", err)
		}
	}
	return append([]byte(nil), buf.Bytes()...)
}

func capture(pid, ppid uint32, comm string, payload []byte) *bpf.CaptureEvent {
	ev := &bpf.CaptureEvent{
		Pid:      pid,
		Ppid:     ppid,
		Len:      uint32(len(payload)),
		Captured: true,
		Payload:  payload,
	}
	copy(ev.Comm[:], comm)
	return ev
}
