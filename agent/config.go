package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SessionConfig controls a session's behavior. The zero value is not usable;
// start from DefaultSessionConfig.
type SessionConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`

	// SystemPromptOverride replaces the profile's base prompt when set.
	SystemPromptOverride string `yaml:"system_prompt_override,omitempty" json:"system_prompt_override,omitempty"`
	// UserInstructions are appended after every other prompt section so
	// they take precedence.
	UserInstructions string `yaml:"user_instructions,omitempty" json:"user_instructions,omitempty"`

	// MaxTurns bounds total user+assistant turns for the session lifetime.
	// 0 means unlimited.
	MaxTurns int `yaml:"max_turns" json:"max_turns"`
	// MaxToolRoundsPerInput bounds model/tool round trips per user input.
	MaxToolRoundsPerInput int `yaml:"max_tool_rounds_per_input" json:"max_tool_rounds_per_input"`

	DefaultCommandTimeoutMs int `yaml:"default_command_timeout_ms" json:"default_command_timeout_ms"`
	MaxCommandTimeoutMs     int `yaml:"max_command_timeout_ms" json:"max_command_timeout_ms"`

	EnableLoopDetection bool `yaml:"enable_loop_detection" json:"enable_loop_detection"`
	LoopDetectionWindow int  `yaml:"loop_detection_window" json:"loop_detection_window"`

	MaxSubagentDepth int `yaml:"max_subagent_depth" json:"max_subagent_depth"`

	// ScopeDir confines all tool operations to a subtree when set.
	ScopeDir string `yaml:"scope_dir,omitempty" json:"scope_dir,omitempty"`

	Temperature     *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	ReasoningEffort string   `yaml:"reasoning_effort,omitempty" json:"reasoning_effort,omitempty"`

	// ToolCharLimits and ToolLineLimits override the built-in truncation
	// limits per tool name.
	ToolCharLimits map[string]int `yaml:"tool_char_limits,omitempty" json:"tool_char_limits,omitempty"`
	ToolLineLimits map[string]int `yaml:"tool_line_limits,omitempty" json:"tool_line_limits,omitempty"`

	// MCPServers are external tool servers to connect at session start.
	MCPServers []MCPServerConfig `yaml:"mcp_servers,omitempty" json:"mcp_servers,omitempty"`

	// StorePath enables session persistence when set.
	StorePath string `yaml:"store_path,omitempty" json:"store_path,omitempty"`

	// EventBufferSize sizes the session event channel.
	EventBufferSize int `yaml:"event_buffer_size,omitempty" json:"event_buffer_size,omitempty"`

	// subagentDepth is the current nesting depth, set when spawning.
	subagentDepth int

	// sharedPool lends a parent session's external servers to a spawned
	// child. A session with a shared pool does not close it.
	sharedPool *ServerPool
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxTurns:                0,
		MaxToolRoundsPerInput:   200,
		DefaultCommandTimeoutMs: 10000,
		MaxCommandTimeoutMs:     600000,
		EnableLoopDetection:     true,
		LoopDetectionWindow:     10,
		MaxSubagentDepth:        1,
		EventBufferSize:         256,
	}
}

// LoadSessionConfig reads a YAML config file, layered over the defaults.
func LoadSessionConfig(path string) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks field ranges.
func (c SessionConfig) Validate() error {
	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns must be >= 0")
	}
	if c.MaxToolRoundsPerInput <= 0 {
		return fmt.Errorf("max_tool_rounds_per_input must be > 0")
	}
	if c.DefaultCommandTimeoutMs <= 0 {
		return fmt.Errorf("default_command_timeout_ms must be > 0")
	}
	if c.MaxCommandTimeoutMs < c.DefaultCommandTimeoutMs {
		return fmt.Errorf("max_command_timeout_ms must be >= default_command_timeout_ms")
	}
	if c.EnableLoopDetection && c.LoopDetectionWindow <= 0 {
		return fmt.Errorf("loop_detection_window must be > 0 when loop detection is enabled")
	}
	if c.MaxSubagentDepth < 0 {
		return fmt.Errorf("max_subagent_depth must be >= 0")
	}
	return nil
}
