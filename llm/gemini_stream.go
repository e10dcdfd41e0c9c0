package llm

// geminiStream translates streamGenerateContent SSE chunks into unified
// events. Each chunk repeats the response envelope; function calls arrive
// whole, so their Start/End pairs are emitted back to back.
type geminiStream struct {
	*streamTranslator
}

func newGeminiStream(model string) *geminiStream {
	return &geminiStream{streamTranslator: newStreamTranslator("gemini", model)}
}

func (s *geminiStream) feed(frame *SSEFrame) []StreamEvent {
	if errObj := objectField(frame.Data, "error"); errObj != nil {
		return s.fail(classifyEmbeddedError("gemini", errObj), frame.Data)
	}

	events := s.start()
	s.setResponseID(stringField(frame.Data, "responseId"))
	if m := stringField(frame.Data, "modelVersion"); m != "" {
		s.model = m
	}

	candidates, _ := frame.Data["candidates"].([]any)
	if len(candidates) > 0 {
		candidate, _ := candidates[0].(map[string]any)
		content := objectField(candidate, "content")
		parts, _ := content["parts"].([]any)
		for _, p := range parts {
			pobj, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if call := objectField(pobj, "functionCall"); call != nil {
				events = append(events, s.feedFunctionCall(call, frame.Data)...)
				continue
			}
			if text, ok := pobj["text"].(string); ok && text != "" {
				if thought, _ := pobj["thought"].(bool); thought {
					events = append(events, s.appendReasoning(text, frame.Data)...)
				} else {
					events = append(events, s.appendText(text, frame.Data)...)
				}
			}
		}
		s.setFinishRaw(stringField(candidate, "finishReason"))
	}

	if usage := objectField(frame.Data, "usageMetadata"); usage != nil {
		s.setUsage(ParseUsage(usage))
	}
	return events
}

func (s *geminiStream) feedFunctionCall(call, raw map[string]any) []StreamEvent {
	args, err := marshalGeminiArgs(call["args"])
	done := ToolCall{Name: stringField(call, "name"), Arguments: args}
	if err != nil {
		done.Arguments = []byte("{}")
		done.ParseError = "arguments are not valid JSON"
	}
	return s.addToolCall(done, raw)
}
