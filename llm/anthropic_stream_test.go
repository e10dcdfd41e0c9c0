package llm

import "testing"

func TestAnthropicStreamText(t *testing.T) {
	s := newAnthropicStream("claude-opus-4-6")

	var events []StreamEvent
	events = append(events, s.feed(frame("message_start", map[string]any{
		"message": map[string]any{
			"id":    "msg_123",
			"model": "claude-opus-4-6",
			"usage": map[string]any{"input_tokens": float64(12)},
		},
	}))...)
	events = append(events, s.feed(frame("content_block_start", map[string]any{
		"index":         float64(0),
		"content_block": map[string]any{"type": "text"},
	}))...)
	events = append(events, s.feed(frame("content_block_delta", map[string]any{
		"index": float64(0),
		"delta": map[string]any{"type": "text_delta", "text": "Hel"},
	}))...)
	events = append(events, s.feed(frame("content_block_delta", map[string]any{
		"index": float64(0),
		"delta": map[string]any{"type": "text_delta", "text": "lo"},
	}))...)
	events = append(events, s.feed(frame("content_block_stop", map[string]any{
		"index": float64(0),
	}))...)
	events = append(events, s.feed(frame("message_delta", map[string]any{
		"delta": map[string]any{"stop_reason": "end_turn"},
		"usage": map[string]any{"output_tokens": float64(4)},
	}))...)
	events = append(events, s.feed(frame("message_stop", map[string]any{}))...)

	expected := []StreamEventType{
		StreamStart, TextStart, TextDelta, TextDelta, TextEnd, StreamFinish,
	}
	got := collectTypes(events)
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}

	finish := events[len(events)-1]
	if finish.Response.ID != "msg_123" {
		t.Errorf("expected msg_123, got %q", finish.Response.ID)
	}
	if finish.Response.Text() != "Hello" {
		t.Errorf("expected %q, got %q", "Hello", finish.Response.Text())
	}
	if finish.FinishReason.Reason != FinishStop {
		t.Errorf("expected stop, got %q", finish.FinishReason.Reason)
	}
	// Usage merged from message_start and message_delta.
	if finish.Usage.InputTokens != 12 || finish.Usage.OutputTokens != 4 {
		t.Errorf("usage not merged across frames: %+v", finish.Usage)
	}
}

func TestAnthropicStreamToolUse(t *testing.T) {
	s := newAnthropicStream("claude-opus-4-6")

	var events []StreamEvent
	events = append(events, s.feed(frame("message_start", map[string]any{
		"message": map[string]any{"id": "msg_tool"},
	}))...)
	events = append(events, s.feed(frame("content_block_start", map[string]any{
		"index": float64(0),
		"content_block": map[string]any{
			"type": "tool_use",
			"id":   "toolu_01",
			"name": "get_weather",
		},
	}))...)
	events = append(events, s.feed(frame("content_block_delta", map[string]any{
		"index": float64(0),
		"delta": map[string]any{"type": "input_json_delta", "partial_json": `{"city"`},
	}))...)
	events = append(events, s.feed(frame("content_block_delta", map[string]any{
		"index": float64(0),
		"delta": map[string]any{"type": "input_json_delta", "partial_json": `:"SF"}`},
	}))...)
	events = append(events, s.feed(frame("content_block_stop", map[string]any{
		"index": float64(0),
	}))...)
	events = append(events, s.feed(frame("message_delta", map[string]any{
		"delta": map[string]any{"stop_reason": "tool_use"},
	}))...)
	events = append(events, s.feed(frame("message_stop", map[string]any{}))...)

	var end *ToolCall
	for i := range events {
		if events[i].Type == ToolCallEnd {
			end = events[i].ToolCall
		}
	}
	if end == nil {
		t.Fatalf("no tool call end event: %v", collectTypes(events))
	}
	if end.ID != "toolu_01" || end.Name != "get_weather" {
		t.Errorf("unexpected call identity: %+v", end)
	}
	if string(end.Arguments) != `{"city":"SF"}` {
		t.Errorf("arguments not assembled: %s", end.Arguments)
	}

	finish := events[len(events)-1]
	if finish.FinishReason.Reason != FinishToolCalls {
		t.Errorf("expected tool_calls, got %q", finish.FinishReason.Reason)
	}
}

func TestAnthropicStreamThinking(t *testing.T) {
	s := newAnthropicStream("claude-opus-4-6")

	s.feed(frame("message_start", map[string]any{
		"message": map[string]any{"id": "msg_think"},
	}))
	s.feed(frame("content_block_start", map[string]any{
		"index":         float64(0),
		"content_block": map[string]any{"type": "thinking"},
	}))
	events := s.feed(frame("content_block_delta", map[string]any{
		"index": float64(0),
		"delta": map[string]any{"type": "thinking_delta", "thinking": "pondering"},
	}))

	found := false
	for _, e := range events {
		if e.Type == ReasoningDelta && e.Reasoning == "pondering" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected reasoning delta, got %v", collectTypes(events))
	}

	s.feed(frame("content_block_stop", map[string]any{"index": float64(0)}))
	final := s.feed(frame("message_stop", map[string]any{}))
	resp := final[len(final)-1].Response
	if resp.Reasoning() != "pondering" {
		t.Errorf("thinking not accumulated: %q", resp.Reasoning())
	}
}

func TestAnthropicStreamError(t *testing.T) {
	s := newAnthropicStream("claude-opus-4-6")
	events := s.feed(frame("error", map[string]any{
		"error": map[string]any{"type": "overloaded_error", "message": "overloaded"},
	}))
	if len(events) != 1 || events[0].Type != StreamFailed {
		t.Fatalf("expected single error event, got %v", collectTypes(events))
	}
	if more := s.feed(frame("message_stop", map[string]any{})); len(more) != 0 {
		t.Errorf("frames after error emitted %d events", len(more))
	}
}

func TestAnthropicStreamPingIgnored(t *testing.T) {
	s := newAnthropicStream("claude-opus-4-6")
	if events := s.feed(frame("ping", map[string]any{})); len(events) != 0 {
		t.Errorf("ping emitted %d events", len(events))
	}
}
