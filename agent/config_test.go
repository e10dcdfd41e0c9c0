package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSessionConfigValid(t *testing.T) {
	cfg := DefaultSessionConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.MaxToolRoundsPerInput != 200 {
		t.Errorf("unexpected round limit: %d", cfg.MaxToolRoundsPerInput)
	}
	if !cfg.EnableLoopDetection || cfg.LoopDetectionWindow != 10 {
		t.Errorf("unexpected loop detection defaults: %+v", cfg)
	}
}

func TestLoadSessionConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
provider: anthropic
model: claude-opus-4-6
max_turns: 40
user_instructions: "Be brief."
tool_char_limits:
  shell: 5000
mcp_servers:
  - id: files
    command: file-server
    args: ["--root", "/data"]
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadSessionConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "anthropic" || cfg.Model != "claude-opus-4-6" {
		t.Errorf("identity fields not loaded: %+v", cfg)
	}
	if cfg.MaxTurns != 40 {
		t.Errorf("max_turns not loaded: %d", cfg.MaxTurns)
	}
	// Unset fields keep their defaults.
	if cfg.MaxToolRoundsPerInput != 200 || cfg.DefaultCommandTimeoutMs != 10000 {
		t.Errorf("defaults lost under layering: %+v", cfg)
	}
	if cfg.ToolCharLimits["shell"] != 5000 {
		t.Errorf("tool_char_limits not loaded: %v", cfg.ToolCharLimits)
	}
	if len(cfg.MCPServers) != 1 || cfg.MCPServers[0].ID != "files" || cfg.MCPServers[0].Command != "file-server" {
		t.Errorf("mcp_servers not loaded: %+v", cfg.MCPServers)
	}
}

func TestLoadSessionConfigMissingFile(t *testing.T) {
	if _, err := LoadSessionConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadSessionConfigInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_tool_rounds_per_input: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSessionConfig(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SessionConfig)
	}{
		{"negative max_turns", func(c *SessionConfig) { c.MaxTurns = -1 }},
		{"zero rounds", func(c *SessionConfig) { c.MaxToolRoundsPerInput = 0 }},
		{"zero timeout", func(c *SessionConfig) { c.DefaultCommandTimeoutMs = 0 }},
		{"max below default timeout", func(c *SessionConfig) { c.MaxCommandTimeoutMs = 1 }},
		{"loop window zero", func(c *SessionConfig) { c.LoopDetectionWindow = 0 }},
		{"negative subagent depth", func(c *SessionConfig) { c.MaxSubagentDepth = -1 }},
	}
	for _, tc := range cases {
		cfg := DefaultSessionConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidateLoopWindowIgnoredWhenDisabled(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.EnableLoopDetection = false
	cfg.LoopDetectionWindow = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled loop detection must not require a window: %v", err)
	}
}
