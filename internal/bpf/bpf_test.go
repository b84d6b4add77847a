package bpf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawSample(t *testing.T, length uint32, filled bool, comm string, payload []byte, pad int) []byte {
	t.Helper()

	buf := make([]byte, HeaderSize, HeaderSize+len(payload)+pad)
	binary.LittleEndian.PutUint64(buf[0:], 123456789)
	binary.LittleEndian.PutUint32(buf[8:], 4242)
	binary.LittleEndian.PutUint32(buf[12:], 1)
	binary.LittleEndian.PutUint32(buf[16:], 4243)
	binary.LittleEndian.PutUint32(buf[20:], 1000)
	binary.LittleEndian.PutUint32(buf[24:], length)
	if filled {
		binary.LittleEndian.PutUint32(buf[28:], 1)
	}
	copy(buf[32:48], comm)
	buf = append(buf, payload...)
	return append(buf, make([]byte, pad)...)
}

func TestDecodeCaptureEvent_Header(t *testing.T) {
	raw := rawSample(t, 5, true, "curl", []byte("hello"), 3)

	ev, err := DecodeCaptureEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, uint64(123456789), ev.TimestampNs)
	assert.Equal(t, uint32(4242), ev.Pid)
	assert.Equal(t, uint32(1), ev.Ppid)
	assert.Equal(t, uint32(4243), ev.Tid)
	assert.Equal(t, uint32(1000), ev.UID)
	assert.Equal(t, "curl", ev.Command())
	assert.True(t, ev.Captured)
	assert.Equal(t, []byte("hello"), ev.Payload, "perf padding must not leak into the payload")
}

func TestDecodeCaptureEvent_NotCaptured(t *testing.T) {
	raw := rawSample(t, 9000, false, "git", nil, 0)

	ev, err := DecodeCaptureEvent(raw)
	require.NoError(t, err)

	assert.False(t, ev.Captured)
	assert.Empty(t, ev.Payload)
	assert.Equal(t, uint32(9000), ev.Len, "declared length is kept for unreadable writes")
}

func TestDecodeCaptureEvent_TruncatedWrite(t *testing.T) {
	payload := make([]byte, MaxBufSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	raw := rawSample(t, 20000, true, "mvn", payload, 0)

	ev, err := DecodeCaptureEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, uint32(20000), ev.Len)
	assert.Len(t, ev.Payload, MaxBufSize)
}

func TestDecodeCaptureEvent_SampleShorterThanDeclared(t *testing.T) {
	raw := rawSample(t, 100, true, "pip", []byte("abc"), 0)

	ev, err := DecodeCaptureEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), ev.Payload)
}

func TestDecodeCaptureEvent_ShortRecord(t *testing.T) {
	_, err := DecodeCaptureEvent(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrShortRecord)
}

func TestRawHeader_MatchesGeneratedLayout(t *testing.T) {
	assert.Equal(t, HeaderSize, binary.Size(rawHeader{}))
	assert.Equal(t, 48, HeaderSize)
	assert.Equal(t, 8192, MaxBufSize)
	assert.Equal(t, 16, TaskCommLen)
}

func TestEmbeddedObject_HasBothStrategies(t *testing.T) {
	spec, err := loadTlsWrite()
	require.NoError(t, err)

	assert.Contains(t, spec.Programs, ProgramUserRead)
	assert.Contains(t, spec.Programs, ProgramLegacyRead)
	assert.Contains(t, spec.Maps, "events")
	assert.Contains(t, spec.Maps, "scratch")
}

func TestLoadObjects_UnknownProgram(t *testing.T) {
	_, err := LoadObjects("probe_tls_read", nil)
	assert.ErrorContains(t, err, "unknown capture program")
}
