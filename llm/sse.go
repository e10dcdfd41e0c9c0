package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// SSEFrame is one parsed server-sent event.
type SSEFrame struct {
	Event string
	Data  map[string]any
	Raw   json.RawMessage
}

// SSEReader reads SSE frames from a response body. Frames whose data is not
// a JSON object are reported through the Err return so the caller can
// classify them as stream errors rather than silently skipping.
type SSEReader struct {
	scanner *bufio.Scanner
	event   string
}

// NewSSEReader creates a reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
	return &SSEReader{scanner: scanner}
}

// Next returns the next frame, io.EOF at end of stream, or an error for
// malformed JSON data.
func (r *SSEReader) Next() (*SSEFrame, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			continue
		}
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			r.event = strings.TrimSpace(name)
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil, io.EOF
		}

		var parsed map[string]any
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			return nil, &StreamError{
				SDKError: SDKError{Message: "malformed SSE data", Cause: err},
				Raw:      data,
			}
		}

		event := r.event
		r.event = ""
		if event == "" {
			event, _ = parsed["type"].(string)
		}
		return &SSEFrame{Event: event, Data: parsed, Raw: json.RawMessage(data)}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, &StreamError{SDKError: SDKError{Message: "stream read failed", Cause: err}}
	}
	return nil, io.EOF
}
