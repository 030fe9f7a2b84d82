// Package source reads and classifies Gemini CLI telemetry records.
package source

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
)

// Stream yields the top-level JSON values of a telemetry log in file order.
// Values may be concatenated back to back or newline-delimited; the decoder
// does not care. The file is never loaded whole.
type Stream struct {
	f       *os.File
	dec     *json.Decoder
	tailErr error
}

// OpenStream opens the log for streaming. The caller must Close it.
func OpenStream(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Stream{
		f:   f,
		dec: json.NewDecoder(bufio.NewReaderSize(f, 256*1024)),
	}, nil
}

// Next returns the next complete top-level value. ok is false at end of
// stream, either a clean EOF or a malformed tail, distinguished by TailErr.
// A partially written final record from a concurrent writer shows up here as
// an unexpected-EOF or syntax error; the complete prefix has already been
// yielded, so the stream just stops.
func (s *Stream) Next() (raw any, ok bool) {
	var v any
	if err := s.dec.Decode(&v); err != nil {
		if !errors.Is(err, io.EOF) {
			s.tailErr = err
		}
		return nil, false
	}
	return v, true
}

// TailErr reports the error that stopped the stream early, or nil if the
// stream ended at a clean EOF.
func (s *Stream) TailErr() error {
	return s.tailErr
}

// Close releases the underlying file.
func (s *Stream) Close() error {
	return s.f.Close()
}
