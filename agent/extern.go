package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/substratelabs/orbit/llm"
)

// maxToolNameBytes bounds namespaced tool names. Truncation can collapse two
// distinct (server, tool) pairs onto the same key; registration treats that
// as a collision.
const maxToolNameBytes = 64

// ServerToolResult is the raw result of an external tool call before
// conversion to model-facing text.
type ServerToolResult struct {
	TextBlocks []string
	Structured any
	IsError    bool
}

// ToolServer is an out-of-process tool provider.
type ToolServer interface {
	ID() string
	ListTools(ctx context.Context) ([]llm.ToolDefinition, error)
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ServerToolResult, error)
	Close() error
}

// ServerPool holds the live connections to external tool servers, keyed by
// server id. Executors resolve their server from the pool at call time, so a
// reconnect (Add with the same id) is transparent to registered tools.
type ServerPool struct {
	servers map[string]ToolServer
	origins map[string]string // registered tool name -> "server/tool"
	mu      sync.RWMutex
}

// NewServerPool creates an empty pool.
func NewServerPool() *ServerPool {
	return &ServerPool{
		servers: make(map[string]ToolServer),
		origins: make(map[string]string),
	}
}

// Add inserts or replaces a server connection.
func (p *ServerPool) Add(server ToolServer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.servers[server.ID()] = server
}

// Get returns the live server for an id, or nil.
func (p *ServerPool) Get(id string) ToolServer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.servers[id]
}

// IDs returns the pooled server ids.
func (p *ServerPool) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.servers))
	for id := range p.servers {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts down every pooled server, returning the first error.
func (p *ServerPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, server := range p.servers {
		if err := server.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.servers = make(map[string]ToolServer)
	return firstErr
}

func (p *ServerPool) claimName(name, origin string) (existing string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, taken := p.origins[name]; taken && prev != origin {
		return prev, false
	}
	p.origins[name] = origin
	return "", true
}

// sanitizeNameSegment replaces every character outside [A-Za-z0-9_] with an
// underscore.
func sanitizeNameSegment(segment string) string {
	var sb strings.Builder
	sb.Grow(len(segment))
	for _, r := range segment {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// NamespacedToolName builds the registry key for an external tool:
// tool__{server}__{tool}, segments sanitized, truncated to 64 bytes.
func NamespacedToolName(serverID, toolName string) string {
	name := "tool__" + sanitizeNameSegment(serverID) + "__" + sanitizeNameSegment(toolName)
	if len(name) > maxToolNameBytes {
		name = name[:maxToolNameBytes]
	}
	return name
}

// ServerSummary reports what one server contributed during registration.
type ServerSummary struct {
	ServerID        string
	RegisteredTools []string
}

// RegisterServerTools discovers every pooled server's tools and registers
// them under namespaced names. A name collision with a different origin
// skips the new tool and logs both origins. One server's listing failure is
// logged and never blocks the others. Only servers that registered at least
// one tool appear in the returned summaries.
func RegisterServerTools(ctx context.Context, reg *ToolRegistry, pool *ServerPool) []ServerSummary {
	var summaries []ServerSummary
	for _, id := range pool.IDs() {
		server := pool.Get(id)
		if server == nil {
			continue
		}
		tools, err := server.ListTools(ctx)
		if err != nil {
			slog.Warn("external tool listing failed, skipping server",
				"server", id, "error", err)
			continue
		}

		var registered []string
		for _, tool := range tools {
			name := NamespacedToolName(id, tool.Name)
			origin := id + "/" + tool.Name
			if existing, ok := pool.claimName(name, origin); !ok {
				slog.Warn("external tool name collision, skipping",
					"name", name, "existing_origin", existing, "new_origin", origin)
				continue
			}
			def := tool
			def.Name = name
			reg.Register(RegisteredTool{
				Definition: def,
				Executor:   &serverToolExecutor{pool: pool, serverID: id, toolName: tool.Name},
			})
			registered = append(registered, name)
		}
		if len(registered) > 0 {
			summaries = append(summaries, ServerSummary{ServerID: id, RegisteredTools: registered})
		}
	}
	return summaries
}

// serverToolExecutor dispatches a registered external tool. The owning
// server is resolved from the pool by id on every call.
type serverToolExecutor struct {
	pool     *ServerPool
	serverID string
	toolName string
}

func (e *serverToolExecutor) Execute(ctx context.Context, arguments json.RawMessage, _ ExecutionEnvironment) (string, error) {
	server := e.pool.Get(e.serverID)
	if server == nil {
		return "", fmt.Errorf("tool server %q is not connected", e.serverID)
	}
	result, err := server.CallTool(ctx, e.toolName, arguments)
	if err != nil {
		return "", err
	}
	return FormatServerResult(result), nil
}

// FormatServerResult converts a raw server result to model-facing text.
// Structured content wins over text blocks; error-flagged results are
// prefixed "[ERROR] ". Non-text blocks were already dropped by the server
// layer, with text ordering preserved.
func FormatServerResult(result *ServerToolResult) string {
	var body string
	if result.Structured != nil {
		if pretty, err := json.MarshalIndent(result.Structured, "", "  "); err == nil {
			body = string(pretty)
		}
	}
	if body == "" {
		body = strings.Join(result.TextBlocks, "\n")
	}
	if result.IsError {
		return "[ERROR] " + body
	}
	return body
}
