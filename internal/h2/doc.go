// Package h2 rebuilds HTTP/2 requests from plaintext captured at TLS write calls.
//
// Every capture is reconstructed on its own: the connection preface is
// skipped, frame headers are walked in order, and each frame carrying both
// END_HEADERS and END_STREAM has its header block HPACK-decoded into a
// RequestRecord.
//
// No state is kept between captures. Each header block is decoded with a
// fresh HPACK context, so blocks that index dynamic-table entries created
// by earlier writes on the same connection fail to decode and are dropped.
// Parsing never resynchronises: the first malformed header, undecodable
// block, or frame running past the captured bytes ends the capture.
package h2
