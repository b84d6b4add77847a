package h2

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/net/http2"
)

// FrameHeaderLen is the fixed size of an HTTP/2 frame header.
const FrameHeaderLen = 9

var (
	// ErrShortHeader is returned when fewer than FrameHeaderLen bytes remain.
	ErrShortHeader = errors.New("frame header truncated")
	// ErrMalformedFrame is returned for unknown frame types and invalid stream ids.
	ErrMalformedFrame = errors.New("malformed frame header")
)

// FrameType enumerates the frame types a capture may contain.
type FrameType uint8

// Frame types, numbered as on the wire.
const (
	FrameData FrameType = iota
	FrameHeaders
	FramePriority
	FrameRSTStream
	FrameSettings
	FramePushPromise
	FramePing
	FrameGoAway
	FrameWindowUpdate
	FrameContinuation
	FrameAltSvc
)

var frameNames = [...]string{
	FrameData:         "DATA",
	FrameHeaders:      "HEADERS",
	FramePriority:     "PRIORITY",
	FrameRSTStream:    "RST_STREAM",
	FrameSettings:     "SETTINGS",
	FramePushPromise:  "PUSH_PROMISE",
	FramePing:         "PING",
	FrameGoAway:       "GOAWAY",
	FrameWindowUpdate: "WINDOW_UPDATE",
	FrameContinuation: "CONTINUATION",
	FrameAltSvc:       "ALT_SVC",
}

func (t FrameType) String() string {
	if int(t) < len(frameNames) {
		return frameNames[t]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// Flag is a named frame flag bit.
type Flag string

// Flag names.
const (
	FlagEndStream  Flag = "END_STREAM"
	FlagEndHeaders Flag = "END_HEADERS"
	FlagPadded     Flag = "PADDED"
	FlagPriority   Flag = "PRIORITY"
	FlagAck        Flag = "ACK"
)

type namedBit struct {
	name Flag
	bit  http2.Flags
}

// definedFlags lists the flag bits each frame type gives a meaning to.
// Bits outside this table are ignored, so a DATA frame never reports
// END_HEADERS even if bit 0x4 is set.
var definedFlags = map[FrameType][]namedBit{
	FrameData: {
		{FlagEndStream, http2.FlagDataEndStream},
		{FlagPadded, http2.FlagDataPadded},
	},
	FrameHeaders: {
		{FlagEndStream, http2.FlagHeadersEndStream},
		{FlagEndHeaders, http2.FlagHeadersEndHeaders},
		{FlagPadded, http2.FlagHeadersPadded},
		{FlagPriority, http2.FlagHeadersPriority},
	},
	FrameSettings: {
		{FlagAck, http2.FlagSettingsAck},
	},
	FramePushPromise: {
		{FlagEndHeaders, http2.FlagPushPromiseEndHeaders},
		{FlagPadded, http2.FlagPushPromisePadded},
	},
	FramePing: {
		{FlagAck, http2.FlagPingAck},
	},
	FrameContinuation: {
		{FlagEndHeaders, http2.FlagContinuationEndHeaders},
	},
}

type streamRule uint8

const (
	streamAny streamRule = iota
	streamRequired
	streamForbidden
)

var streamRules = map[FrameType]streamRule{
	FrameData:         streamRequired,
	FrameHeaders:      streamRequired,
	FramePriority:     streamRequired,
	FrameRSTStream:    streamRequired,
	FramePushPromise:  streamRequired,
	FrameContinuation: streamRequired,
	FrameSettings:     streamForbidden,
	FramePing:         streamForbidden,
	FrameGoAway:       streamForbidden,
	FrameWindowUpdate: streamAny,
	FrameAltSvc:       streamAny,
}

// Frame is a parsed frame header. Offset locates the payload in the buffer
// the header was parsed from; Length is the declared payload size, which
// may exceed what was captured.
type Frame struct {
	Type     FrameType
	Flags    []Flag
	StreamID uint32
	Length   int
	Offset   int
}

// Has reports whether the frame carries the named flag.
func (f Frame) Has(flag Flag) bool {
	for _, fl := range f.Flags {
		if fl == flag {
			return true
		}
	}
	return false
}

// End returns the offset just past the frame's declared payload.
func (f Frame) End() int {
	return f.Offset + f.Length
}

// IsRequestEnd reports whether the frame both closes the header block and the stream.
func (f Frame) IsRequestEnd() bool {
	return f.Has(FlagEndHeaders) && f.Has(FlagEndStream)
}

// ParseFrameHeader parses the 9-byte frame header at buf[offset:].
func ParseFrameHeader(buf []byte, offset int) (Frame, error) {
	if offset < 0 || len(buf)-offset < FrameHeaderLen {
		return Frame{}, ErrShortHeader
	}

	hdr, err := http2.ReadFrameHeader(bytes.NewReader(buf[offset : offset+FrameHeaderLen]))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrShortHeader, err)
	}

	typ := FrameType(hdr.Type)
	rule, known := streamRules[typ]
	if !known {
		return Frame{}, fmt.Errorf("%w: unknown type %d", ErrMalformedFrame, uint8(hdr.Type))
	}
	switch {
	case rule == streamRequired && hdr.StreamID == 0:
		return Frame{}, fmt.Errorf("%w: %s on stream 0", ErrMalformedFrame, typ)
	case rule == streamForbidden && hdr.StreamID != 0:
		return Frame{}, fmt.Errorf("%w: %s on stream %d", ErrMalformedFrame, typ, hdr.StreamID)
	}

	frame := Frame{
		Type:     typ,
		StreamID: hdr.StreamID,
		Length:   int(hdr.Length),
		Offset:   offset + FrameHeaderLen,
	}
	for _, nb := range definedFlags[typ] {
		if hdr.Flags.Has(nb.bit) {
			frame.Flags = append(frame.Flags, nb.name)
		}
	}
	return frame, nil
}
