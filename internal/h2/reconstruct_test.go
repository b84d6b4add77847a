package h2

import (
	"bytes"
	"testing"

	"github.com/opensourceways/sbom-tracer/internal/jsonl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

const endHeadersEndStream = 0x05

func newTestReconstructor(parent ParentResolver) (*Reconstructor, *bytes.Buffer) {
	var out bytes.Buffer
	return NewReconstructor(jsonl.NewWriter(&out), parent, zap.NewNop()), &out
}

func TestReconstruct_StripsPreface(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	block := headerBlock(t, ":method", "GET", ":path", "/org/repo/info/refs", ":authority", "example.com")

	payload := append([]byte(http2.ClientPreface), frame(FrameSettings, 0, 0, nil)...)
	payload = append(payload, frame(FrameHeaders, endHeadersEndStream, 1, block)...)

	recs := r.Reconstruct(capture(100, 1, "git-remote-http", payload))
	require.Len(t, recs, 1)
	assert.Equal(t, "git-remote-http", recs[0].Cmd)
	assert.Equal(t, uint32(100), recs[0].Pid)
	assert.Equal(t, uint32(1), recs[0].Ppid)
	assert.Equal(t, [][2]string{
		{":method", "GET"},
		{":path", "/org/repo/info/refs"},
		{":authority", "example.com"},
	}, recs[0].Data)
}

func TestReconstruct_NoPrefaceFramesFromStart(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	payload := frame(FrameHeaders, endHeadersEndStream, 3, headerBlock(t, ":method", "GET"))

	recs := r.Reconstruct(capture(1, 1, "curl", payload))
	require.Len(t, recs, 1)
	assert.Equal(t, [][2]string{{":method", "GET"}}, recs[0].Data)
}

func TestReconstruct_PartialPrefaceIsNotStripped(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	payload := []byte(http2.ClientPreface[:10])
	payload = append(payload, frame(FrameHeaders, endHeadersEndStream, 1, headerBlock(t, ":method", "GET"))...)

	assert.Empty(t, r.Reconstruct(capture(1, 1, "curl", payload)))
}

func TestReconstruct_RequiresBothTerminalFlags(t *testing.T) {
	block := headerBlock(t, ":method", "POST")

	tests := []struct {
		name  string
		typ   FrameType
		flags uint8
		want  int
	}{
		{"headers both flags", FrameHeaders, 0x05, 1},
		{"headers end headers only", FrameHeaders, 0x04, 0},
		{"headers end stream only", FrameHeaders, 0x01, 0},
		{"data with both bits", FrameData, 0x05, 0},
		{"continuation end headers", FrameContinuation, 0x05, 0},
		{"push promise end headers", FramePushPromise, 0x05, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestReconstructor(nil)
			recs := r.Reconstruct(capture(1, 1, "curl", frame(tt.typ, tt.flags, 1, block)))
			assert.Len(t, recs, tt.want)
		})
	}
}

func TestReconstruct_TruncatedFrame(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	full := frame(FrameHeaders, endHeadersEndStream, 1, headerBlock(t, ":method", "GET", ":path", "/a/very/long/path"))

	for cut := FrameHeaderLen; cut < len(full); cut++ {
		recs := r.Reconstruct(capture(1, 1, "curl", full[:cut]))
		assert.Empty(t, recs, "cut at %d", cut)
	}
}

func TestReconstruct_TruncationAfterCompleteRequest(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	first := frame(FrameHeaders, endHeadersEndStream, 1, headerBlock(t, ":path", "/one"))
	second := frame(FrameHeaders, endHeadersEndStream, 3, headerBlock(t, ":path", "/two"))

	payload := append(first, second[:len(second)-2]...)
	recs := r.Reconstruct(capture(1, 1, "curl", payload))
	require.Len(t, recs, 1)
	assert.Equal(t, [][2]string{{":path", "/one"}}, recs[0].Data)
}

func TestReconstruct_MalformedHeaderAbandonsRest(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	good := frame(FrameHeaders, endHeadersEndStream, 1, headerBlock(t, ":path", "/one"))
	bad := frameHeader(0, FrameType(0x33), 0, 1)
	after := frame(FrameHeaders, endHeadersEndStream, 3, headerBlock(t, ":path", "/two"))

	payload := append(append(good, bad...), after...)
	recs := r.Reconstruct(capture(1, 1, "curl", payload))
	require.Len(t, recs, 1)
	assert.Equal(t, [][2]string{{":path", "/one"}}, recs[0].Data)
}

func TestReconstruct_SkipsNonQualifyingFrames(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	payload := frame(FrameSettings, 0, 0, make([]byte, 6))
	payload = append(payload, frame(FrameWindowUpdate, 0, 0, []byte{0, 0, 0, 1})...)
	payload = append(payload, frame(FrameHeaders, 0x04, 1, headerBlock(t, ":path", "/open"))...)
	payload = append(payload, frame(FrameData, 0x01, 1, []byte("body"))...)
	payload = append(payload, frame(FrameHeaders, endHeadersEndStream, 3, headerBlock(t, ":path", "/done"))...)

	recs := r.Reconstruct(capture(1, 1, "curl", payload))
	require.Len(t, recs, 1)
	assert.Equal(t, [][2]string{{":path", "/done"}}, recs[0].Data)
}

func TestReconstruct_PaddedAndPriority(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	block := headerBlock(t, ":method", "GET")

	// pad length, then stream dependency and weight, then the block and its padding
	payload := []byte{3}
	payload = append(payload, 0, 0, 0, 0, 16)
	payload = append(payload, block...)
	payload = append(payload, 0, 0, 0)
	flags := uint8(endHeadersEndStream | 0x08 | 0x20)

	recs := r.Reconstruct(capture(1, 1, "curl", frame(FrameHeaders, flags, 1, payload)))
	require.Len(t, recs, 1)
	assert.Equal(t, [][2]string{{":method", "GET"}}, recs[0].Data)
}

func TestReconstruct_DynamicTableReferenceFailsDecoding(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	// 0xbe indexes the first dynamic table entry, which a fresh context lacks.
	recs := r.Reconstruct(capture(1, 1, "curl", frame(FrameHeaders, endHeadersEndStream, 1, []byte{0xbe})))
	assert.Empty(t, recs)
}

func TestReconstruct_SharedContextAcrossFrames(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	first := encodeFields(t, enc, &buf, ":authority", "pypi.org", "user-agent", "pip/24.0", ":path", "/simple/requests/")
	second := encodeFields(t, enc, &buf, ":authority", "pypi.org", "user-agent", "pip/24.0", ":path", "/simple/urllib3/")
	require.Less(t, len(second), len(first), "second block should index entries added by the first")

	payload := frame(FrameHeaders, endHeadersEndStream, 1, first)
	payload = append(payload, frame(FrameHeaders, endHeadersEndStream, 3, second)...)

	recs := r.Reconstruct(capture(1, 1, "pip", payload))
	require.Len(t, recs, 2)
	assert.Equal(t, [][2]string{
		{":authority", "pypi.org"},
		{"user-agent", "pip/24.0"},
		{":path", "/simple/urllib3/"},
	}, recs[1].Data)
}

func TestReconstruct_ContextDoesNotLeakBetweenCaptures(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	first := encodeFields(t, enc, &buf, "user-agent", "pip/24.0")
	second := encodeFields(t, enc, &buf, "user-agent", "pip/24.0")

	require.Len(t, r.Reconstruct(capture(1, 1, "pip", frame(FrameHeaders, endHeadersEndStream, 1, first))), 1)
	assert.Empty(t, r.Reconstruct(capture(1, 1, "pip", frame(FrameHeaders, endHeadersEndStream, 3, second))))
}

func TestReconstruct_NotCaptured(t *testing.T) {
	r, _ := newTestReconstructor(nil)
	ev := capture(1, 1, "curl", nil)
	ev.Captured = false
	ev.Len = 512
	assert.Empty(t, r.Reconstruct(ev))
}

func TestReconstruct_ParentFallback(t *testing.T) {
	var asked uint32
	r, _ := newTestReconstructor(func(pid uint32) uint32 {
		asked = pid
		return 77
	})

	payload := frame(FrameHeaders, endHeadersEndStream, 1, headerBlock(t, ":method", "GET"))
	recs := r.Reconstruct(capture(500, 0, "pip", payload))
	require.Len(t, recs, 1)
	assert.Equal(t, uint32(500), asked)
	assert.Equal(t, uint32(77), recs[0].Ppid)
}

func TestHandleCapture_WritesParseableLines(t *testing.T) {
	r, out := newTestReconstructor(nil)
	payload := frame(FrameHeaders, endHeadersEndStream, 1, headerBlock(t, ":path", "/x", "user-agent", "pip/24.0"))
	payload = append(payload, frame(FrameHeaders, endHeadersEndStream, 3, headerBlock(t, ":path", "/y"))...)

	require.NoError(t, r.HandleCapture(capture(9, 8, "pip", payload)))

	var got []RequestRecord
	require.NoError(t, jsonl.ForEachLine(out, func(line []byte) error {
		var rec RequestRecord
		if err := jsonl.Unmarshal(line, &rec); err != nil {
			return err
		}
		got = append(got, rec)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, [][2]string{{":path", "/x"}, {"user-agent", "pip/24.0"}}, got[0].Data)
	assert.Equal(t, uint32(8), got[1].Ppid)
}
