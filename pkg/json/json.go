// Package json provides JSON serialization backed by goccy/go-json
package json

import (
	"bufio"
	"io"

	gojson "github.com/goccy/go-json"
)

// RawMessage is a raw encoded JSON value
type RawMessage = gojson.RawMessage

// Marshal encodes v
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal decodes data into v
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// Valid reports whether data is a valid JSON encoding
func Valid(data []byte) bool {
	return gojson.Valid(data)
}

// NewDecoder returns a decoder reading from r
func NewDecoder(r io.Reader) *gojson.Decoder {
	return gojson.NewDecoder(r)
}

// NewEncoder returns an encoder writing to w with HTML escaping disabled
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// LinesWriter writes one JSON document per line. It is not safe for
// concurrent use.
type LinesWriter struct {
	w     *bufio.Writer
	enc   *gojson.Encoder
	count int64
}

// NewLinesWriter creates a newline-delimited JSON writer
func NewLinesWriter(w io.Writer) *LinesWriter {
	bw := bufio.NewWriter(w)
	return &LinesWriter{w: bw, enc: NewEncoder(bw)}
}

// Write encodes v followed by a newline
func (lw *LinesWriter) Write(v interface{}) error {
	if err := lw.enc.Encode(v); err != nil {
		return err
	}
	lw.count++
	return nil
}

// Count returns the number of documents written
func (lw *LinesWriter) Count() int64 {
	return lw.count
}

// Flush flushes buffered output
func (lw *LinesWriter) Flush() error {
	return lw.w.Flush()
}
