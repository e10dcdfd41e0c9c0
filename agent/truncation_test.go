package agent

import (
	"strings"
	"testing"
)

func TestTruncateOutputUnderLimit(t *testing.T) {
	out := TruncateOutput("short", 100, TruncateHeadTail)
	if out != "short" {
		t.Errorf("under-limit output modified: %q", out)
	}
}

func TestTruncateOutputHeadTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	out := TruncateOutput(input, 100, TruncateHeadTail)

	if !strings.HasPrefix(out, strings.Repeat("a", 50)) {
		t.Error("head not preserved")
	}
	if !strings.HasSuffix(out, strings.Repeat("z", 50)) {
		t.Error("tail not preserved")
	}
	if !strings.Contains(out, "900 characters were removed from the middle") {
		t.Errorf("marker missing or wrong count:\n%s", out)
	}
}

func TestTruncateOutputTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 100)
	out := TruncateOutput(input, 100, TruncateTail)

	if !strings.HasSuffix(out, strings.Repeat("z", 100)) {
		t.Error("tail mode must keep the end")
	}
	if !strings.Contains(out, "First 500 characters were removed") {
		t.Errorf("marker missing:\n%s", out)
	}
}

func TestTruncateLines(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "line")
	}
	out := TruncateLines(strings.Join(lines, "\n"), 10)

	if !strings.Contains(out, "[... 90 lines omitted ...]") {
		t.Errorf("omission marker wrong:\n%s", out)
	}
	if got := len(strings.Split(out, "\n")); got != 11 {
		t.Errorf("expected 10 content lines plus marker, got %d lines", got)
	}
}

func TestTruncateLinesUnderLimit(t *testing.T) {
	input := "a\nb\nc"
	if out := TruncateLines(input, 10); out != input {
		t.Errorf("under-limit input modified: %q", out)
	}
}

func TestTruncateToolOutputPerToolLimit(t *testing.T) {
	input := strings.Repeat("x", 2000)
	out := TruncateToolOutput(input, "write_file", nil, nil)
	if len(out) >= 2000 {
		t.Error("write_file limit of 1000 chars not applied")
	}
	if !strings.Contains(out, "truncated") {
		t.Error("truncation marker missing")
	}
}

func TestTruncateToolOutputCustomLimit(t *testing.T) {
	input := strings.Repeat("x", 500)
	out := TruncateToolOutput(input, "read_file", map[string]int{"read_file": 100}, nil)
	if len(out) >= 500 {
		t.Error("custom limit not applied")
	}
}

func TestTruncateToolOutputUnknownToolFallback(t *testing.T) {
	input := strings.Repeat("x", 1000)
	if out := TruncateToolOutput(input, "mystery_tool", nil, nil); out != input {
		t.Error("unknown tool under the 30000 fallback must pass through")
	}
}

func TestTruncateToolOutputLineLimit(t *testing.T) {
	var lines []string
	for i := 0; i < 400; i++ {
		lines = append(lines, "out")
	}
	out := TruncateToolOutput(strings.Join(lines, "\n"), "shell", nil, nil)
	if !strings.Contains(out, "lines omitted") {
		t.Error("shell line limit not applied")
	}
}
