package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/substratelabs/orbit/llm"
)

// spawnFromOutput extracts the subagent id from spawn_agent's tool output.
func spawnFromOutput(t *testing.T, out string) string {
	t.Helper()
	firstLine := strings.SplitN(out, "\n", 2)[0]
	id := strings.TrimSpace(strings.TrimPrefix(firstLine, "Subagent spawned with ID:"))
	if id == "" {
		t.Fatalf("no subagent id in output: %q", out)
	}
	return id
}

func TestSpawnedAgentSharesParentToolSurface(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		toolCallResponse(llm.ToolCall{ID: "c1", Name: "tool__ext__ping", Arguments: json.RawMessage(`{}`)}),
		textResponse("sub done"),
	}}
	session, profile := sessionFixture(t, adapter, DefaultSessionConfig())

	server := &fakeToolServer{
		id:     "ext",
		tools:  []llm.ToolDefinition{{Name: "ping", Description: "ping the server"}},
		result: &ServerToolResult{TextBlocks: []string{"pong"}},
	}
	session.ServerPool().Add(server)
	RegisterServerTools(context.Background(), profile.ToolRegistry(), session.ServerPool())

	spawn := profile.ToolRegistry().Get("spawn_agent")
	if spawn == nil {
		t.Fatal("spawn_agent not registered")
	}
	out, err := spawn.Executor.Execute(context.Background(), json.RawMessage(`{"task":"call ping"}`), session.env)
	if err != nil {
		t.Fatal(err)
	}

	handle := session.subagents.Get(spawnFromOutput(t, out))
	if handle == nil {
		t.Fatal("spawned agent not tracked")
	}
	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subagent did not finish")
	}

	// The external tool registered on the parent must be callable from the
	// child, through the parent's live server connection.
	if len(server.calls) != 1 || server.calls[0] != "ping" {
		t.Errorf("external tool not reached through the parent pool: %v", server.calls)
	}
	_, result := handle.Snapshot()
	if result == nil || !result.Success {
		t.Fatalf("subagent failed: %+v", result)
	}

	// Closing the child must leave the parent's servers connected.
	handle.Session.Close()
	if server.closed {
		t.Error("child close tore down the parent's server pool")
	}
}

func TestSpawnedAgentRegistryIsIsolated(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{textResponse("sub done")}}
	session, profile := sessionFixture(t, adapter, DefaultSessionConfig())

	spawn := profile.ToolRegistry().Get("spawn_agent")
	out, err := spawn.Executor.Execute(context.Background(), json.RawMessage(`{"task":"noop"}`), session.env)
	if err != nil {
		t.Fatal(err)
	}
	handle := session.subagents.Get(spawnFromOutput(t, out))
	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subagent did not finish")
	}

	// Depth 1 of 1: the child cannot spawn, and its cloned registry must not
	// carry the parent's spawn tools.
	subReg := handle.Session.profile.ToolRegistry()
	for _, name := range subagentToolNames {
		if subReg.Has(name) {
			t.Errorf("child past the depth limit still exposes %s", name)
		}
	}
	// The parent's own registry keeps them.
	if !profile.ToolRegistry().Has("spawn_agent") {
		t.Error("parent registry lost spawn_agent")
	}
}
