// Package sse implements a stateful Server-Sent Events parser, used
// both to decode upstream `text/event-stream` responses
// (HttpStream/GraphqlStream IO) and to frame downstream subscription
// responses.
package sse

import "strings"

// Decoder accumulates bytes and splits them into event payloads,
// retaining any partial event across calls.
type Decoder struct {
	buf strings.Builder
}

// NewDecoder returns a fresh SSE decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode appends chunk and returns the payload of every complete event
// now available. An event is delimited by a blank line ("\n\n"); its
// payload is the concatenation of its `data:` lines (joined by "\n",
// with one leading space after the colon trimmed). `event:`, `id:`,
// `retry:`, and comment lines (leading ':') are ignored. A block with
// no `data:` lines produces nothing.
func (d *Decoder) Decode(chunk []byte) []string {
	d.buf.Write(chunk)
	text := d.buf.String()

	var out []string
	for {
		idx := strings.Index(text, "\n\n")
		if idx == -1 {
			break
		}
		block := text[:idx]
		text = text[idx+2:]
		if payload, ok := parseBlock(block); ok {
			out = append(out, payload)
		}
	}

	d.buf.Reset()
	d.buf.WriteString(text)
	return out
}

func parseBlock(block string) (string, bool) {
	lines := strings.Split(block, "\n")
	var dataLines []string
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment
		}
		if strings.HasPrefix(line, "data:") {
			v := strings.TrimPrefix(line, "data:")
			v = strings.TrimPrefix(v, " ")
			dataLines = append(dataLines, v)
			continue
		}
		// event:, id:, retry: and anything else are ignored.
	}
	if len(dataLines) == 0 {
		return "", false
	}
	return strings.Join(dataLines, "\n"), true
}

// Write writes a well-formed `data: <payload>\n\n` event to w.
func Write(w Writer, payload string) error {
	_, err := w.Write([]byte("data: " + payload + "\n\n"))
	return err
}

// Writer is the minimal byte-sink Write needs, matching http.ResponseWriter.
type Writer interface {
	Write([]byte) (int, error)
}
