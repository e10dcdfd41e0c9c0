package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/substratelabs/orbit/llm"
)

// MCPServerConfig describes how to reach one MCP server. Exactly one of
// Command or URL must be set.
type MCPServerConfig struct {
	ID      string            `yaml:"id" json:"id"`
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	// Transport selects "sse" or "streamable" for URL servers. Defaults to
	// streamable.
	Transport string `yaml:"transport,omitempty" json:"transport,omitempty"`
}

// MCPToolServer is a ToolServer backed by a Model Context Protocol session.
type MCPToolServer struct {
	id      string
	session *mcp.ClientSession
}

// ConnectMCPServer establishes an MCP session per the config and returns it
// as a ToolServer ready for pooling.
func ConnectMCPServer(ctx context.Context, cfg MCPServerConfig) (*MCPToolServer, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("mcp server config missing id")
	}

	var transport mcp.Transport
	switch {
	case cfg.Command != "":
		cmd := exec.Command(cfg.Command, cfg.Args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcp.CommandTransport{Command: cmd}
	case cfg.URL != "" && cfg.Transport == "sse":
		transport = &mcp.SSEClientTransport{Endpoint: cfg.URL}
	case cfg.URL != "":
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return nil, fmt.Errorf("mcp server %q: neither command nor url configured", cfg.ID)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "orbit", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: connect: %w", cfg.ID, err)
	}
	return &MCPToolServer{id: cfg.ID, session: session}, nil
}

func (s *MCPToolServer) ID() string { return s.id }

// ListTools enumerates the server's tools as provider-neutral definitions.
func (s *MCPToolServer) ListTools(ctx context.Context) ([]llm.ToolDefinition, error) {
	var defs []llm.ToolDefinition
	for tool, err := range s.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp server %q: list tools: %w", s.id, err)
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schemaToMap(tool.InputSchema),
		})
	}
	return defs, nil
}

// schemaToMap converts an MCP JSON schema to the map form tool definitions
// carry. A nil or unmarshalable schema becomes a permissive object schema.
func schemaToMap(schema any) map[string]any {
	fallback := map[string]any{"type": "object"}
	if schema == nil {
		return fallback
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fallback
	}
	return m
}

// CallTool invokes a tool on the server. Text blocks are kept in order;
// non-text content is dropped.
func (s *MCPToolServer) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ServerToolResult, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("mcp server %q: tool %q: invalid arguments: %w", s.id, name, err)
		}
	}

	res, err := s.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: tool %q: %w", s.id, name, err)
	}

	result := &ServerToolResult{
		Structured: res.StructuredContent,
		IsError:    res.IsError,
	}
	for _, block := range res.Content {
		if text, ok := block.(*mcp.TextContent); ok {
			result.TextBlocks = append(result.TextBlocks, text.Text)
		}
	}
	return result, nil
}

// Close terminates the session.
func (s *MCPToolServer) Close() error {
	return s.session.Close()
}
