package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// streamPhase tags the lifecycle stage of a streaming translation. The
// accumulators below are only meaningful while streaming; finished streams
// emit nothing further, which makes a double Finish unrepresentable.
type streamPhase int

const (
	phaseNotStarted streamPhase = iota
	phaseStreaming
	phaseFinished
)

// streamTranslator is the vendor-independent half of a streaming translation:
// a mutable per-stream state object fed by a vendor frame parser, producing
// zero or more ordered StreamEvents per frame. Vendor translators own frame
// decoding and call into these methods.
type streamTranslator struct {
	provider   string
	model      string
	responseID string

	phase    streamPhase
	textOpen bool
	textSeq  int
	textID   string
	text     strings.Builder
	thinking strings.Builder

	toolCalls []ToolCall
	usage     Usage
	hasUsage  bool
	finishRaw string
	warnings  []Warning
}

func newStreamTranslator(provider, model string) *streamTranslator {
	return &streamTranslator{provider: provider, model: model}
}

// start transitions into the streaming phase, emitting the single
// StreamStart. Safe to call from every frame handler.
func (t *streamTranslator) start() []StreamEvent {
	if t.phase != phaseNotStarted {
		return nil
	}
	t.phase = phaseStreaming
	return []StreamEvent{{Type: StreamStart}}
}

// appendText routes an ordinary text token: opens the text block on first
// delta, accumulates for the final response.
func (t *streamTranslator) appendText(delta string, raw map[string]any) []StreamEvent {
	if t.phase == phaseFinished {
		return nil
	}
	events := t.start()
	if !t.textOpen {
		t.textOpen = true
		t.textID = fmt.Sprintf("text_%d", t.textSeq)
		t.textSeq++
		events = append(events, StreamEvent{Type: TextStart, TextID: t.textID})
	}
	t.text.WriteString(delta)
	events = append(events, StreamEvent{Type: TextDelta, Delta: delta, TextID: t.textID, Raw: raw})
	return events
}

// closeText ends the open text block, if any.
func (t *streamTranslator) closeText() []StreamEvent {
	if t.phase == phaseFinished || !t.textOpen {
		return nil
	}
	t.textOpen = false
	return []StreamEvent{{Type: TextEnd, TextID: t.textID}}
}

// appendReasoning routes a reasoning-flagged token. Reasoning deltas carry
// no start/end envelope.
func (t *streamTranslator) appendReasoning(delta string, raw map[string]any) []StreamEvent {
	if t.phase == phaseFinished {
		return nil
	}
	events := t.start()
	t.thinking.WriteString(delta)
	return append(events, StreamEvent{Type: ReasoningDelta, Reasoning: delta, Raw: raw})
}

// startToolCall announces a tool call whose arguments are still streaming.
func (t *streamTranslator) startToolCall(id, name string) []StreamEvent {
	if t.phase == phaseFinished {
		return nil
	}
	events := t.start()
	return append(events, StreamEvent{Type: ToolCallStart, ToolCall: &ToolCall{ID: id, Name: name}})
}

// endToolCall records a completed tool call and emits its End event.
func (t *streamTranslator) endToolCall(call ToolCall, raw map[string]any) []StreamEvent {
	if t.phase == phaseFinished {
		return nil
	}
	events := t.start()
	if call.ID == "" {
		call.ID = "call_" + uuid.New().String()[:8]
	}
	t.toolCalls = append(t.toolCalls, call)
	return append(events, StreamEvent{Type: ToolCallEnd, ToolCall: &call, Raw: raw})
}

// addToolCall emits the Start/End pair back to back for a call that arrived
// whole in one frame. Calls without a vendor id get a generated one, stable
// across the pair and the final response.
func (t *streamTranslator) addToolCall(call ToolCall, raw map[string]any) []StreamEvent {
	if t.phase == phaseFinished {
		return nil
	}
	if call.ID == "" {
		call.ID = "call_" + uuid.New().String()[:8]
	}
	events := t.startToolCall(call.ID, call.Name)
	return append(events, t.endToolCall(call, raw)...)
}

func (t *streamTranslator) setUsage(u Usage) {
	t.usage = u
	t.hasUsage = true
}

func (t *streamTranslator) setFinishRaw(reason string) {
	if reason != "" {
		t.finishRaw = reason
	}
}

func (t *streamTranslator) setResponseID(id string) {
	if id != "" {
		t.responseID = id
	}
}

func (t *streamTranslator) addWarning(w Warning) {
	t.warnings = append(t.warnings, w)
}

// fail marks the stream finished and emits the single terminal error event.
// All further frames are suppressed.
func (t *streamTranslator) fail(err error, raw map[string]any) []StreamEvent {
	if t.phase == phaseFinished {
		return nil
	}
	t.phase = phaseFinished
	return []StreamEvent{{Type: StreamFailed, Err: err, Raw: raw}}
}

// end is the idempotent finalizer. If the stream never finished normally it
// synthesizes the missing StreamStart/TextEnd, flushes accumulated text and
// thinking into the final Response, computes the aggregate finish reason and
// usage, and emits exactly one Finish. A second call returns nothing.
func (t *streamTranslator) end() []StreamEvent {
	if t.phase == phaseFinished {
		return nil
	}
	var events []StreamEvent
	events = append(events, t.start()...)
	events = append(events, t.closeText()...)
	t.phase = phaseFinished

	resp := t.buildResponse()
	events = append(events, StreamEvent{
		Type:         StreamFinish,
		FinishReason: &resp.FinishReason,
		Usage:        &resp.Usage,
		Response:     resp,
		Warnings:     resp.Warnings,
	})
	return events
}

func (t *streamTranslator) buildResponse() *Response {
	var parts []ContentPart
	if t.thinking.Len() > 0 {
		parts = append(parts, ThinkingPart(t.thinking.String(), ""))
	}
	if t.text.Len() > 0 {
		parts = append(parts, TextPart(t.text.String()))
	}
	for _, call := range t.toolCalls {
		parts = append(parts, ToolCallPart(call.ID, call.Name, call.Arguments))
	}

	id := t.responseID
	if id == "" {
		id = "resp_" + uuid.New().String()[:8]
	}

	return &Response{
		ID:           id,
		Model:        t.model,
		Provider:     t.provider,
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: NormalizeFinishReason(t.finishRaw, len(t.toolCalls) > 0),
		Usage:        t.usage,
		Warnings:     t.warnings,
	}
}

// frameMachine is one vendor's streaming translation: feed consumes a parsed
// SSE frame, end finalizes at end of stream, fail handles reader errors.
type frameMachine interface {
	feed(frame *SSEFrame) []StreamEvent
	end() []StreamEvent
	fail(err error, raw map[string]any) []StreamEvent
}

// runStream drives a frame machine over an SSE reader, forwarding events to
// out until the stream ends or the context is cancelled.
func runStream(ctx context.Context, out chan<- StreamEvent, reader *SSEReader, machine frameMachine) {
	emit := func(events []StreamEvent) bool {
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		frame, err := reader.Next()
		if err == io.EOF {
			emit(machine.end())
			return
		}
		if err != nil {
			emit(machine.fail(err, nil))
			return
		}
		if !emit(machine.feed(frame)) {
			return
		}
	}
}

// finishToolCall validates argument text accumulated for a tool call. Bad
// JSON is preserved verbatim with a parse error instead of being dropped.
func finishToolCall(id, name, argText string) ToolCall {
	call := ToolCall{ID: id, Name: name}
	trimmed := strings.TrimSpace(argText)
	if trimmed == "" {
		trimmed = "{}"
	}
	if !json.Valid([]byte(trimmed)) {
		call.Arguments = []byte("{}")
		call.RawArguments = argText
		call.ParseError = "arguments are not valid JSON"
		return call
	}
	call.Arguments = []byte(trimmed)
	return call
}
