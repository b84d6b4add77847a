// Package jsonl reads and writes newline-delimited JSON records.
package jsonl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bytedance/sonic"
)

// api produces output byte-compatible with encoding/json.
var api = sonic.ConfigStd

// Writer appends one JSON object per line. Each record is marshalled first
// and written with a single Write call under a lock, so concurrent writers
// never interleave partial lines.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes v as a single line.
func (w *Writer) Write(v any) error {
	line, err := api.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Unmarshal decodes a single line into v.
func Unmarshal(line []byte, v any) error {
	return api.Unmarshal(line, v)
}

// ForEachLine calls fn for every non-empty line of r, without a line length
// limit. Lines are passed without the trailing newline. Iteration stops at
// the first error returned by fn.
func ForEachLine(r io.Reader, fn func(line []byte) error) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			line = trimEOL(line)
			if len(line) > 0 {
				if ferr := fn(line); ferr != nil {
					return ferr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading lines: %w", err)
		}
	}
}

func trimEOL(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
