package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/substratelabs/orbit/llm"
)

func echoTool(name string) RegisteredTool {
	return RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:       name,
			Parameters: objectSchema(map[string]any{"text": stringProp("text to echo")}, "text"),
		},
		Executor: ToolFunc(func(ctx context.Context, arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			text, _ := GetStringArg(args, "text")
			return text, nil
		}),
	}
}

func TestToolRegistry(t *testing.T) {
	reg := NewToolRegistry()
	if reg.Count() != 0 {
		t.Fatalf("new registry not empty: %d", reg.Count())
	}

	reg.Register(echoTool("echo"))
	if !reg.Has("echo") || reg.Count() != 1 {
		t.Error("registered tool not visible")
	}
	if reg.Get("echo") == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if reg.Get("missing") != nil {
		t.Error("Get returned non-nil for unknown tool")
	}

	defs := reg.Definitions()
	if len(defs) != 1 || defs[0].Name != "echo" {
		t.Errorf("unexpected definitions: %+v", defs)
	}

	// Re-registering the same name replaces.
	reg.Register(echoTool("echo"))
	if reg.Count() != 1 {
		t.Errorf("replace grew the registry to %d", reg.Count())
	}

	reg.Unregister("echo")
	if reg.Has("echo") {
		t.Error("tool survived Unregister")
	}
}

func TestToolRegistryClone(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(echoTool("echo"))

	clone := reg.Clone()
	clone.Register(echoTool("extra"))

	if reg.Has("extra") {
		t.Error("mutation of clone leaked into original")
	}
	if !clone.Has("echo") {
		t.Error("clone lost original tool")
	}
}

func TestParseToolArguments(t *testing.T) {
	args, err := ParseToolArguments(json.RawMessage(`{"a":1,"b":"two"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 2 {
		t.Errorf("unexpected args: %+v", args)
	}

	if _, err := ParseToolArguments(json.RawMessage(`not json`)); err == nil {
		t.Error("expected error for malformed arguments")
	}
}

func TestArgGetters(t *testing.T) {
	args := map[string]any{
		"s": "hello",
		"n": float64(42),
		"b": true,
	}

	if v, ok := GetStringArg(args, "s"); !ok || v != "hello" {
		t.Errorf("string: got %q ok=%v", v, ok)
	}
	if _, ok := GetStringArg(args, "n"); ok {
		t.Error("string getter accepted a number")
	}
	if v, ok := GetIntArg(args, "n"); !ok || v != 42 {
		t.Errorf("int: got %d ok=%v", v, ok)
	}
	if _, ok := GetIntArg(args, "s"); ok {
		t.Error("int getter accepted a string")
	}
	if v, ok := GetBoolArg(args, "b"); !ok || !v {
		t.Errorf("bool: got %v ok=%v", v, ok)
	}
	if _, ok := GetBoolArg(args, "missing"); ok {
		t.Error("getter reported ok for missing key")
	}
}
