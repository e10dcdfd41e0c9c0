package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGeminiRequestTranslation(t *testing.T) {
	a := &GeminiAdapter{}
	req := Request{
		Model: "gemini-2.5-pro",
		Messages: []Message{
			SystemMessage("be brief"),
			UserMessage("list the files"),
			{Role: RoleAssistant, Content: []ContentPart{
				ToolCallPart("call_ab12", "list_directory", json.RawMessage(`{"path":"."}`)),
			}},
			ToolResultMessage("call_ab12", "README.md", false),
		},
		Tools: []ToolDefinition{{
			Name:        "list_directory",
			Description: "list a directory",
			Parameters:  map[string]any{"type": "object"},
		}},
	}

	body, err := a.buildRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	sys, _ := body["systemInstruction"].(map[string]any)
	if sys == nil {
		t.Fatal("system not lifted into systemInstruction")
	}

	contents, _ := body["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	model := itemAt(t, contents, 1)
	if model["role"] != "model" {
		t.Errorf("assistant turn must use the model role: %v", model["role"])
	}
	parts, _ := model["parts"].([]any)
	call, _ := itemAt(t, parts, 0)["functionCall"].(map[string]any)
	if call["name"] != "list_directory" {
		t.Fatalf("functionCall wrong: %v", call)
	}
	if args, _ := call["args"].(map[string]any); args["path"] != "." {
		t.Errorf("arguments not decoded into args: %v", call["args"])
	}

	// Tool results are keyed by function name on the wire; the call id is
	// resolved while walking the history.
	result := itemAt(t, contents, 2)
	rparts, _ := result["parts"].([]any)
	fr, _ := itemAt(t, rparts, 0)["functionResponse"].(map[string]any)
	if fr["name"] != "list_directory" {
		t.Fatalf("call id not resolved to a name: %v", fr)
	}
	if response, _ := fr["response"].(map[string]any); response["output"] != "README.md" {
		t.Errorf("result content wrong: %v", fr["response"])
	}

	tools, _ := body["tools"].([]any)
	decls, _ := itemAt(t, tools, 0)["functionDeclarations"].([]any)
	if len(decls) != 1 {
		t.Errorf("functionDeclarations wrong: %v", tools)
	}
}

func TestGeminiToolResultWithoutPriorCall(t *testing.T) {
	a := &GeminiAdapter{}
	req := Request{
		Model: "gemini-2.5-pro",
		Messages: []Message{
			UserMessage("hello"),
			ToolResultMessage("call_unknown", "output", false),
		},
	}
	if _, err := a.buildRequest(req); err == nil {
		t.Error("a result with no matching call must be rejected")
	}
}

func TestGeminiResponseRoundTrip(t *testing.T) {
	a := &GeminiAdapter{}
	raw := decodeBody(t, `{
		"responseId": "r1",
		"modelVersion": "gemini-2.5-pro",
		"candidates": [{
			"content": {"role": "model", "parts": [
				{"text": "planning", "thought": true},
				{"functionCall": {"name": "read_file", "args": {"file_path": "a.txt"}}}
			]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 3, "totalTokenCount": 8}
	}`)

	resp, err := a.parseResponse("gemini-2.5-pro", raw)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "r1" || resp.Reasoning() != "planning" {
		t.Errorf("response parts wrong: %+v", resp.Message)
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 || calls[0].Name != "read_file" {
		t.Fatalf("tool calls wrong: %+v", calls)
	}
	// The vendor sends no call id; a generated one correlates the reply.
	if !strings.HasPrefix(calls[0].ID, "call_") {
		t.Errorf("expected a generated id, got %q", calls[0].ID)
	}
	if resp.FinishReason.Reason != FinishToolCalls {
		t.Errorf("tool call must override the vendor finish: %+v", resp.FinishReason)
	}
	if resp.Usage.InputTokens != 5 || resp.Usage.TotalTokens != 8 {
		t.Errorf("usageMetadata lost: %+v", resp.Usage)
	}

	// The generated id resolves back to the function name on replay.
	followup := Request{
		Model: "gemini-2.5-pro",
		Messages: []Message{
			UserMessage("read a.txt"),
			resp.Message,
			ToolResultMessage(calls[0].ID, "file contents", false),
		},
	}
	body, err := a.buildRequest(followup)
	if err != nil {
		t.Fatal(err)
	}
	contents, _ := body["contents"].([]any)
	last := itemAt(t, contents, len(contents)-1)
	parts, _ := last["parts"].([]any)
	fr, _ := itemAt(t, parts, 0)["functionResponse"].(map[string]any)
	if fr["name"] != "read_file" {
		t.Errorf("generated id did not round-trip to the call name: %v", fr)
	}
}
