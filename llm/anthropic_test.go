package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAnthropicRequestTranslation(t *testing.T) {
	a := &AnthropicAdapter{}
	req := Request{
		Model: "claude-opus-4-6",
		Messages: []Message{
			SystemMessage("be brief"),
			UserMessage("list the files"),
			{Role: RoleAssistant, Content: []ContentPart{
				TextPart("checking"),
				ToolCallPart("toolu_1", "list_directory", json.RawMessage(`{"path":"."}`)),
			}},
			ToolResultMessage("toolu_1", "README.md", false),
		},
		Tools: []ToolDefinition{{
			Name:        "list_directory",
			Description: "list a directory",
			Parameters:  map[string]any{"type": "object"},
		}},
	}

	body, err := a.buildRequest(req, false)
	if err != nil {
		t.Fatal(err)
	}
	// System content lifts into the top-level field; max_tokens is mandatory.
	if body["system"] != "be brief" {
		t.Errorf("system not lifted: %v", body["system"])
	}
	if body["max_tokens"] != anthropicDefaultMaxTokens {
		t.Errorf("default max_tokens missing: %v", body["max_tokens"])
	}

	messages, _ := body["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	assistant := itemAt(t, messages, 1)
	content, _ := assistant["content"].([]any)
	toolUse := itemAt(t, content, 1)
	if toolUse["type"] != "tool_use" || toolUse["id"] != "toolu_1" || toolUse["name"] != "list_directory" {
		t.Fatalf("tool_use block wrong: %v", toolUse)
	}
	if input, _ := toolUse["input"].(map[string]any); input["path"] != "." {
		t.Errorf("arguments not decoded into input: %v", toolUse["input"])
	}

	// Tool results ride in a user-role message.
	resultMsg := itemAt(t, messages, 2)
	if resultMsg["role"] != "user" {
		t.Errorf("tool result must use the user role: %v", resultMsg["role"])
	}
	blocks, _ := resultMsg["content"].([]any)
	block := itemAt(t, blocks, 0)
	if block["type"] != "tool_result" || block["tool_use_id"] != "toolu_1" || block["content"] != "README.md" {
		t.Errorf("tool_result block wrong: %v", block)
	}

	tools, _ := body["tools"].([]any)
	if def := itemAt(t, tools, 0); def["name"] != "list_directory" || def["input_schema"] == nil {
		t.Errorf("parameters must map to input_schema: %v", def)
	}
}

func TestAnthropicResponseRoundTrip(t *testing.T) {
	a := &AnthropicAdapter{}
	raw := decodeBody(t, `{
		"id": "msg_01",
		"model": "claude-opus-4-6",
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "let me check"},
			{"type": "tool_use", "id": "toolu_9", "name": "read_file", "input": {"file_path": "a.txt"}}
		],
		"usage": {"input_tokens": 9, "output_tokens": 4}
	}`)

	resp, err := a.parseResponse("claude-opus-4-6", raw)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "msg_01" || resp.Text() != "let me check" {
		t.Errorf("response parts wrong: %+v", resp.Message)
	}
	calls := resp.ToolCalls()
	if len(calls) != 1 || calls[0].ID != "toolu_9" || calls[0].Name != "read_file" {
		t.Fatalf("tool calls wrong: %+v", calls)
	}
	if !strings.Contains(string(calls[0].Arguments), `"file_path":"a.txt"`) {
		t.Errorf("input not re-encoded as arguments: %s", calls[0].Arguments)
	}
	if resp.FinishReason.Reason != FinishToolCalls {
		t.Errorf("stop_reason tool_use must normalize to tool_calls: %+v", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("usage totals wrong: %+v", resp.Usage)
	}

	// Replaying the parsed message preserves the correlation id on the wire.
	followup := Request{
		Model: "claude-opus-4-6",
		Messages: []Message{
			UserMessage("read a.txt"),
			resp.Message,
			ToolResultMessage(calls[0].ID, "file contents", false),
		},
	}
	body, err := a.buildRequest(followup, false)
	if err != nil {
		t.Fatal(err)
	}
	messages, _ := body["messages"].([]any)
	last := itemAt(t, messages, len(messages)-1)
	blocks, _ := last["content"].([]any)
	block := itemAt(t, blocks, 0)
	if block["type"] != "tool_result" || block["tool_use_id"] != "toolu_9" {
		t.Errorf("call id did not round-trip: %v", block)
	}
}
