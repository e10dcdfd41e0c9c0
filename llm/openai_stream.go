package llm

import "strings"

// openaiPendingCall tracks one in-flight function call item while its
// argument deltas stream in, keyed by the output item id.
type openaiPendingCall struct {
	callID string
	name   string
	args   strings.Builder
}

// openaiStream translates Responses API SSE frames into unified events.
type openaiStream struct {
	*streamTranslator
	pending map[string]*openaiPendingCall
}

func newOpenAIStream(model string) *openaiStream {
	return &openaiStream{
		streamTranslator: newStreamTranslator("openai", model),
		pending:          make(map[string]*openaiPendingCall),
	}
}

func (s *openaiStream) feed(frame *SSEFrame) []StreamEvent {
	switch frame.Event {
	case "response.created":
		if resp := objectField(frame.Data, "response"); resp != nil {
			s.setResponseID(stringField(resp, "id"))
			if m := stringField(resp, "model"); m != "" {
				s.model = m
			}
		}
		return s.start()

	case "response.output_text.delta":
		return s.appendText(stringField(frame.Data, "delta"), frame.Data)

	case "response.output_text.done":
		return s.closeText()

	case "response.reasoning_summary_text.delta", "response.reasoning_text.delta":
		return s.appendReasoning(stringField(frame.Data, "delta"), frame.Data)

	case "response.output_item.added":
		item := objectField(frame.Data, "item")
		if stringField(item, "type") != "function_call" {
			return nil
		}
		itemID := stringField(item, "id")
		call := &openaiPendingCall{callID: openAICallID(item), name: stringField(item, "name")}
		s.pending[itemID] = call
		return s.startToolCall(call.callID, call.name)

	case "response.function_call_arguments.delta":
		if call, ok := s.pending[stringField(frame.Data, "item_id")]; ok {
			call.args.WriteString(stringField(frame.Data, "delta"))
		}
		return nil

	case "response.output_item.done":
		item := objectField(frame.Data, "item")
		switch stringField(item, "type") {
		case "function_call":
			itemID := stringField(item, "id")
			call, ok := s.pending[itemID]
			if !ok {
				// Item arrived whole without an added frame.
				done := finishToolCall(openAICallID(item), stringField(item, "name"), stringField(item, "arguments"))
				return s.addToolCall(done, frame.Data)
			}
			delete(s.pending, itemID)
			args := call.args.String()
			if args == "" {
				args = stringField(item, "arguments")
			}
			return s.endToolCall(finishToolCall(call.callID, call.name, args), frame.Data)
		case "message":
			return s.closeText()
		}
		return nil

	case "response.completed":
		resp := objectField(frame.Data, "response")
		if resp != nil {
			if usage := objectField(resp, "usage"); usage != nil {
				s.setUsage(ParseUsage(usage))
			}
			s.setFinishRaw(stringField(resp, "status"))
		}
		return s.end()

	case "response.incomplete":
		reason := "incomplete"
		if resp := objectField(frame.Data, "response"); resp != nil {
			if usage := objectField(resp, "usage"); usage != nil {
				s.setUsage(ParseUsage(usage))
			}
			if details := objectField(resp, "incomplete_details"); details != nil {
				if r := stringField(details, "reason"); r != "" {
					reason = r
				}
			}
		}
		s.setFinishRaw(reason)
		return s.end()

	case "response.failed":
		errObj := map[string]any{}
		if resp := objectField(frame.Data, "response"); resp != nil {
			if e := objectField(resp, "error"); e != nil {
				errObj = e
			}
		}
		return s.fail(classifyEmbeddedError("openai", errObj), frame.Data)

	case "error":
		return s.fail(classifyEmbeddedError("openai", frame.Data), frame.Data)

	default:
		return nil
	}
}
