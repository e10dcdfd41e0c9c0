package llm

import "strings"

// anthropicBlock tracks one streaming content block, keyed by its index.
type anthropicBlock struct {
	kind   string
	callID string
	name   string
	args   strings.Builder
}

// anthropicStream translates Messages API SSE frames into unified events.
// Usage arrives split across message_start and message_delta, so the raw
// usage objects are merged before parsing.
type anthropicStream struct {
	*streamTranslator
	blocks   map[int]*anthropicBlock
	usageRaw map[string]any
}

func newAnthropicStream(model string) *anthropicStream {
	return &anthropicStream{
		streamTranslator: newStreamTranslator("anthropic", model),
		blocks:           make(map[int]*anthropicBlock),
		usageRaw:         make(map[string]any),
	}
}

func (s *anthropicStream) mergeUsage(usage map[string]any) {
	for k, v := range usage {
		s.usageRaw[k] = v
	}
	s.setUsage(ParseUsage(s.usageRaw))
}

func (s *anthropicStream) feed(frame *SSEFrame) []StreamEvent {
	switch frame.Event {
	case "message_start":
		if msg := objectField(frame.Data, "message"); msg != nil {
			s.setResponseID(stringField(msg, "id"))
			if m := stringField(msg, "model"); m != "" {
				s.model = m
			}
			if usage := objectField(msg, "usage"); usage != nil {
				s.mergeUsage(usage)
			}
		}
		return s.start()

	case "content_block_start":
		index := intFromAny(frame.Data["index"])
		block := objectField(frame.Data, "content_block")
		kind := stringField(block, "type")
		state := &anthropicBlock{kind: kind}
		s.blocks[index] = state
		if kind == "tool_use" {
			state.callID = stringField(block, "id")
			state.name = stringField(block, "name")
			return s.startToolCall(state.callID, state.name)
		}
		return nil

	case "content_block_delta":
		index := intFromAny(frame.Data["index"])
		delta := objectField(frame.Data, "delta")
		switch stringField(delta, "type") {
		case "text_delta":
			return s.appendText(stringField(delta, "text"), frame.Data)
		case "thinking_delta":
			return s.appendReasoning(stringField(delta, "thinking"), frame.Data)
		case "input_json_delta":
			if state, ok := s.blocks[index]; ok {
				state.args.WriteString(stringField(delta, "partial_json"))
			}
			return nil
		case "signature_delta":
			return nil
		}
		return nil

	case "content_block_stop":
		index := intFromAny(frame.Data["index"])
		state, ok := s.blocks[index]
		if !ok {
			return nil
		}
		delete(s.blocks, index)
		switch state.kind {
		case "text":
			return s.closeText()
		case "tool_use":
			return s.endToolCall(finishToolCall(state.callID, state.name, state.args.String()), frame.Data)
		}
		return nil

	case "message_delta":
		if delta := objectField(frame.Data, "delta"); delta != nil {
			s.setFinishRaw(stringField(delta, "stop_reason"))
		}
		if usage := objectField(frame.Data, "usage"); usage != nil {
			s.mergeUsage(usage)
		}
		return nil

	case "message_stop":
		return s.end()

	case "error":
		errObj := objectField(frame.Data, "error")
		if errObj == nil {
			errObj = frame.Data
		}
		return s.fail(classifyEmbeddedError("anthropic", errObj), frame.Data)

	case "ping":
		return nil

	default:
		return nil
	}
}
