package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Frame is the JSON payload of one server-sent event.
type Frame struct {
	Code int    `json:"code"`
	Data string `json:"data"`
	Msg  string `json:"msg"`
	Type string `json:"type"` // "stream" for partial chunks, "text" otherwise
}

// StreamFrame builds a partial-chunk frame.
func StreamFrame(data string) Frame {
	return Frame{Code: 0, Data: data, Type: "stream"}
}

// ErrorFrame builds an error frame.
func ErrorFrame(msg string) Frame {
	return Frame{Code: -1, Msg: msg, Type: "text"}
}

// doneSentinel terminates every event stream.
const doneSentinel = "data: [DONE]\n\n"

// minChunkRunes is the coalescing threshold: fragments accumulate until a
// sentence-terminal punctuation mark arrives or this many runes are
// buffered, whichever comes first.
const minChunkRunes = 10

// terminalPunctuation marks sentence boundaries that flush the chunk buffer.
var terminalPunctuation = map[rune]bool{
	'。': true, '？': true, '！': true, '；': true, '，': true,
	'.': true, '?': true, '!': true, ';': true,
}

// ChunkWriter coalesces model fragments into SSE frames to cut per-fragment
// overhead on the transport. Trailing partial content is flushed at stream
// end, followed by the end-of-stream sentinel.
type ChunkWriter struct {
	w       io.Writer
	flusher http.Flusher
	buf     strings.Builder
}

// NewChunkWriter wraps an HTTP response as a coalescing SSE writer.
func NewChunkWriter(w io.Writer) *ChunkWriter {
	cw := &ChunkWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		cw.flusher = f
	}
	return cw
}

// Write buffers one fragment, emitting a frame when a sentence boundary or
// the size threshold is reached. A boundary may sit anywhere inside a
// fragment; content up to the last one is emitted and the tail stays
// buffered.
func (cw *ChunkWriter) Write(fragment string) {
	cw.buf.WriteString(fragment)

	buffered := cw.buf.String()
	if cut := cutAfterLastBoundary(buffered); cut > 0 {
		cw.writeFrame(StreamFrame(buffered[:cut]))
		cw.buf.Reset()
		cw.buf.WriteString(buffered[cut:])
		buffered = buffered[cut:]
	}

	if utf8.RuneCountInString(buffered) >= minChunkRunes {
		cw.Flush()
	}
}

// cutAfterLastBoundary returns the byte offset just past the last
// sentence-terminal rune in s, or 0 when s has none.
func cutAfterLastBoundary(s string) int {
	cut := 0
	for i, r := range s {
		if terminalPunctuation[r] {
			cut = i + utf8.RuneLen(r)
		}
	}
	return cut
}

// Flush emits any buffered content as a frame.
func (cw *ChunkWriter) Flush() {
	if cw.buf.Len() == 0 {
		return
	}
	cw.writeFrame(StreamFrame(cw.buf.String()))
	cw.buf.Reset()
}

// Done flushes trailing content and writes the end-of-stream sentinel.
func (cw *ChunkWriter) Done() {
	cw.Flush()
	fmt.Fprint(cw.w, doneSentinel)
	if cw.flusher != nil {
		cw.flusher.Flush()
	}
}

// WriteError emits an error frame immediately, bypassing coalescing.
func (cw *ChunkWriter) WriteError(msg string) {
	cw.Flush()
	cw.writeFrame(ErrorFrame(msg))
}

func (cw *ChunkWriter) writeFrame(frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(cw.w, "data: %s\n\n", payload)
	if cw.flusher != nil {
		cw.flusher.Flush()
	}
}
