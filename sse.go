package analyst

import (
	"bufio"
	"io"
	"strings"
)

const (
	sseDataPrefix   = "data:"
	sseDoneSentinel = "[DONE]"
)

// Decoder turns a chunked event-stream body into data payloads.
//
// Frames are newline-delimited; the reader keeps any incomplete trailing
// fragment until the rest of the line arrives, and flushes a final
// unterminated fragment at EOF. Only "data:" frames yield payloads and the
// "[DONE]" sentinel is skipped. A Decoder is forward-only and single-use:
//
//	dec := NewDecoder(body)
//	for dec.Next() {
//	  handle(dec.Data())
//	}
//	if err := dec.Err(); err != nil { ... }
type Decoder struct {
	br   *bufio.Reader
	data string
	err  error
	done bool
}

// NewDecoder wraps r. The caller still owns closing r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{br: bufio.NewReader(r)}
}

// Next advances to the next payload. It returns false at end of stream or on
// a read error; check Err to tell them apart.
func (d *Decoder) Next() bool {
	for !d.done {
		line, err := d.br.ReadString('\n')
		if err != nil {
			d.done = true
			if err != io.EOF {
				d.err = err
				return false
			}
		}

		if payload, ok := parseDataLine(line); ok {
			d.data = payload
			return true
		}
	}
	d.data = ""
	return false
}

// Data returns the payload found by the last successful Next.
func (d *Decoder) Data() string {
	return d.data
}

// Err returns the first non-EOF read error.
func (d *Decoder) Err() error {
	return d.err
}

// parseDataLine extracts the payload of a "data:" frame.
// Comments, event names, blank lines and the done sentinel yield false.
func parseDataLine(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, sseDataPrefix) {
		return "", false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
	if data == "" || data == sseDoneSentinel {
		return "", false
	}
	return data, true
}
