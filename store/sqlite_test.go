package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/substratelabs/orbit/agent"
	"github.com/substratelabs/orbit/llm"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "orbit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v1" {
		t.Errorf("got %q, want v1", got)
	}

	// Put on an existing key overwrites.
	if err := s.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, "k")
	if string(got) != "v2" {
		t.Errorf("overwrite lost: %q", got)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.Delete(context.Background(), "absent"); err != nil {
		t.Errorf("delete of missing key must not error: %v", err)
	}
}

func TestAppendReadLogOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, "sess-1", []byte(fmt.Sprintf("entry-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	// Another session's entries must not leak in.
	if err := s.Append(ctx, "sess-2", []byte("other")); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ReadLog(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if string(entry) != fmt.Sprintf("entry-%d", i) {
			t.Errorf("entry %d out of order: %q", i, entry)
		}
	}
}

func TestReadLogEmptySession(t *testing.T) {
	s := openTestStore(t)
	entries, err := s.ReadLog(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestRecordAndLoadTurns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	turns := []agent.Turn{
		agent.NewUserTurn("hello"),
		agent.NewAssistantTurn("hi there", []llm.ToolCall{
			{ID: "c1", Name: "shell", Arguments: json.RawMessage(`{"command":"ls"}`)},
		}, "thinking...", llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, "resp_1"),
		agent.NewToolResultsTurn([]llm.ToolResult{
			{ToolCallID: "c1", Content: "README.md"},
		}),
	}
	for _, turn := range turns {
		if err := s.RecordTurn(ctx, "sess-1", turn); err != nil {
			t.Fatal(err)
		}
	}

	loaded, err := s.LoadTurns(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(loaded))
	}
	if loaded[0].Kind != agent.TurnUser || loaded[0].User.Content != "hello" {
		t.Errorf("user turn mangled: %+v", loaded[0])
	}
	a := loaded[1].Assistant
	if a == nil || a.Content != "hi there" || a.ResponseID != "resp_1" {
		t.Fatalf("assistant turn mangled: %+v", loaded[1])
	}
	if len(a.ToolCalls) != 1 || a.ToolCalls[0].Name != "shell" {
		t.Errorf("tool calls lost: %+v", a.ToolCalls)
	}
	if a.Usage.TotalTokens != 15 {
		t.Errorf("usage lost: %+v", a.Usage)
	}
	if loaded[2].ToolResults == nil || loaded[2].ToolResults.Results[0].Content != "README.md" {
		t.Errorf("tool results mangled: %+v", loaded[2])
	}
}

func TestLoadTurnsRejectsCorruptEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "sess-1", []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadTurns(ctx, "sess-1"); err == nil {
		t.Error("expected decode error for corrupt entry")
	}
}
