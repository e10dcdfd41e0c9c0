package llm

import (
	"strings"
	"testing"
)

func TestSplitToolCallPayloadArray(t *testing.T) {
	text := "I will list the files.\n" +
		`[{"name":"list_directory","arguments":{"path":"."}},{"name":"read_file","arguments":{"file_path":"a.txt"}}]`

	lead, calls := splitToolCallPayload(text)
	if lead != "I will list the files." {
		t.Errorf("leading text mangled: %q", lead)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "list_directory" || calls[1].Name != "read_file" {
		t.Errorf("names wrong: %s, %s", calls[0].Name, calls[1].Name)
	}
	if !strings.HasPrefix(calls[0].ID, "call_") || calls[0].ID == calls[1].ID {
		t.Errorf("generated ids wrong: %s, %s", calls[0].ID, calls[1].ID)
	}
	if string(calls[1].Arguments) != `{"file_path":"a.txt"}` {
		t.Errorf("arguments mangled: %s", calls[1].Arguments)
	}
}

func TestSplitToolCallPayloadEnvelope(t *testing.T) {
	text := `{"tool_calls":[{"name":"shell","arguments":{"command":"ls"}}]}`

	lead, calls := splitToolCallPayload(text)
	if lead != "" {
		t.Errorf("expected no leading text, got %q", lead)
	}
	if len(calls) != 1 || calls[0].Name != "shell" {
		t.Fatalf("envelope not unwrapped: %+v", calls)
	}
	if string(calls[0].Arguments) != `{"command":"ls"}` {
		t.Errorf("arguments mangled: %s", calls[0].Arguments)
	}
}

func TestSplitToolCallPayloadPlainText(t *testing.T) {
	text := "No tools needed, the answer is 4."
	lead, calls := splitToolCallPayload(text)
	if lead != text || calls != nil {
		t.Errorf("plain text must pass through untouched: %q, %v", lead, calls)
	}
}

func TestSplitToolCallPayloadMalformed(t *testing.T) {
	text := `thinking... [{"name": "shell", "arguments": {broken`
	lead, calls := splitToolCallPayload(text)
	if lead != text || calls != nil {
		t.Errorf("undecodable payload must stay text: %q, %v", lead, calls)
	}
}

func TestSplitToolCallPayloadMissingArguments(t *testing.T) {
	text := `[{"name":"glob"}]`
	_, calls := splitToolCallPayload(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if string(calls[0].Arguments) != "{}" {
		t.Errorf("absent arguments must default to an empty object: %s", calls[0].Arguments)
	}
}
