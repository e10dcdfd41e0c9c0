package agent

import (
	"github.com/substratelabs/orbit/llm"
)

// ProviderProfile carries the provider-aligned tool and prompt configuration
// for a model family.
type ProviderProfile interface {
	// ID returns the provider identifier ("openai", "anthropic", "gemini").
	ID() string

	// ModelID returns the model identifier.
	ModelID() string

	// ToolRegistry returns the tool registry for this profile.
	ToolRegistry() *ToolRegistry

	// BuildSystemPrompt constructs the full system prompt from environment
	// context, project documentation, and user instructions.
	BuildSystemPrompt(env ExecutionEnvironment, projectDocs, userInstructions string) string

	// Tools returns tool definitions for a request.
	Tools() []llm.ToolDefinition

	// ProviderOptions returns provider-specific request options.
	ProviderOptions() map[string]any

	// Capability flags.
	SupportsReasoning() bool
	SupportsStreaming() bool
	SupportsParallelToolCalls() bool
	ContextWindowSize() int
}

// BaseProfile provides common profile fields and default implementations.
type BaseProfile struct {
	providerID                string
	model                     string
	registry                  *ToolRegistry
	basePrompt                string
	providerOptions           map[string]any
	supportsReasoning         bool
	supportsStreaming         bool
	supportsParallelToolCalls bool
	contextWindowSize         int
}

func (p *BaseProfile) ID() string                  { return p.providerID }
func (p *BaseProfile) ModelID() string             { return p.model }
func (p *BaseProfile) ToolRegistry() *ToolRegistry { return p.registry }

// SetToolRegistry replaces the profile's registry. A spawned child session
// uses this to inherit its parent's tool surface.
func (p *BaseProfile) SetToolRegistry(reg *ToolRegistry) { p.registry = reg }

func (p *BaseProfile) Tools() []llm.ToolDefinition {
	return p.registry.Definitions()
}

func (p *BaseProfile) ProviderOptions() map[string]any { return p.providerOptions }

func (p *BaseProfile) SupportsReasoning() bool        { return p.supportsReasoning }
func (p *BaseProfile) SupportsStreaming() bool        { return p.supportsStreaming }
func (p *BaseProfile) SupportsParallelToolCalls() bool { return p.supportsParallelToolCalls }
func (p *BaseProfile) ContextWindowSize() int         { return p.contextWindowSize }

// BuildSystemPrompt assembles the standard prompt layout around the
// profile's base instructions.
func (p *BaseProfile) BuildSystemPrompt(env ExecutionEnvironment, projectDocs, userInstructions string) string {
	return AssembleSystemPrompt(p.basePrompt, env, p.model, p.registry, projectDocs, userInstructions)
}

// providerDefaults carries per-provider prompt and timing conventions.
var providerDefaults = map[string]struct {
	basePrompt       string
	defaultTimeoutMs int
	contextWindow    int
	options          map[string]any
}{
	"anthropic": {
		basePrompt:       anthropicBasePrompt,
		defaultTimeoutMs: 120000,
		contextWindow:    200000,
		options: map[string]any{
			"anthropic": map[string]any{
				"beta_headers": []string{"extended-thinking-2025-04-11"},
			},
		},
	},
	"openai": {
		basePrompt:       openaiBasePrompt,
		defaultTimeoutMs: 10000,
		contextWindow:    1047576,
	},
	"gemini": {
		basePrompt:       geminiBasePrompt,
		defaultTimeoutMs: 10000,
		contextWindow:    1048576,
	},
}

// NewProviderProfile builds a profile for a provider and model. The context
// window is read from the model catalog when the model is known there;
// capability flags come from the catalog too, defaulting to true for
// unknown models.
func NewProviderProfile(provider, model string) *BaseProfile {
	defaults, ok := providerDefaults[provider]
	if !ok {
		defaults.basePrompt = genericBasePrompt
		defaults.defaultTimeoutMs = 10000
		defaults.contextWindow = 128000
	}

	p := &BaseProfile{
		providerID:                provider,
		model:                     model,
		registry:                  NewToolRegistry(),
		basePrompt:                defaults.basePrompt,
		providerOptions:           defaults.options,
		supportsReasoning:         true,
		supportsStreaming:         true,
		supportsParallelToolCalls: true,
		contextWindowSize:         defaults.contextWindow,
	}

	if info := llm.GetModelInfo(model); info != nil {
		if info.ContextWindow > 0 {
			p.contextWindowSize = info.ContextWindow
		}
		p.supportsReasoning = info.SupportsReasoning
	}

	RegisterCoreTools(p.registry, defaults.defaultTimeoutMs, 600000)

	return p
}

const genericBasePrompt = `You are an autonomous coding agent. You help users with software engineering tasks by reading files, editing code, running commands, and iterating until the task is done.

# Core Principles

- Read files before editing them. Understand existing code before suggesting modifications.
- Use edit_file for targeted modifications with old_string/new_string search-and-replace.
- Use write_file only for creating entirely new files.
- Keep changes minimal and focused. Only make changes that are directly requested or clearly necessary.
- After making changes, verify them by reading the modified file or running relevant tests.

# Error Handling

- If a tool call fails, analyze the error and try a different approach.
- If edit_file fails because old_string is not found, re-read the file to get the current content.
- If a command fails, inspect the output and fix the issue.

# Best Practices

- Write clean, idiomatic code that follows the project's existing style.
- Do not introduce security vulnerabilities.
- Do not add unnecessary dependencies.
- Test changes when possible.`

const anthropicBasePrompt = genericBasePrompt + `

# Tool Usage Guidelines

- Use read_file to examine file contents before editing.
- Use edit_file for targeted modifications. The old_string parameter must be an exact match of text in the file and must be unique; if it appears multiple times, provide more surrounding context or set replace_all.
- Use shell for running commands, tests, and build operations. Prefer short-running commands and set timeouts for potentially long operations.
- Use grep to search file contents by pattern.
- Use glob to find files by name pattern.`

const openaiBasePrompt = genericBasePrompt + `

# Tool Usage Guidelines

- Use read_file to examine file contents before editing.
- Use edit_file for modifications to existing files.
- Use shell for running commands (10s default timeout).
- Use grep to search file contents by pattern.
- Use glob to find files by name pattern.`

const geminiBasePrompt = genericBasePrompt + `

# Tool Usage Guidelines

- Use read_file to examine file contents before editing.
- Use edit_file for modifications with old_string/new_string search-and-replace.
- Use shell for running commands (10s default timeout).
- Use grep to search file contents by pattern.
- Use glob to find files by name pattern.

# GEMINI.md

If the project contains a GEMINI.md file, follow the instructions in it. GEMINI.md files in subdirectories take precedence over root-level files.`
