package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/substratelabs/orbit/llm"
)

// SubAgentStatus represents the lifecycle state of a subagent.
type SubAgentStatus string

const (
	SubAgentRunning   SubAgentStatus = "running"
	SubAgentCompleted SubAgentStatus = "completed"
	SubAgentFailed    SubAgentStatus = "failed"
)

// SubAgentHandle tracks a running subagent. The done channel closes when
// the subagent finishes, successfully or not.
type SubAgentHandle struct {
	ID      string          `json:"id"`
	Session *Session        `json:"-"`
	Status  SubAgentStatus  `json:"status"`
	Result  *SubAgentResult `json:"result,omitempty"`
	done    chan struct{}
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// Done returns a channel closed when the subagent completes.
func (h *SubAgentHandle) Done() <-chan struct{} { return h.done }

// Snapshot returns the current status and result under the handle lock.
func (h *SubAgentHandle) Snapshot() (SubAgentStatus, *SubAgentResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Status, h.Result
}

// SubAgentResult holds the output of a completed subagent.
type SubAgentResult struct {
	Output    string `json:"output"`
	Success   bool   `json:"success"`
	TurnsUsed int    `json:"turns_used"`
}

// SubAgentManager manages child agents for a parent session.
type SubAgentManager struct {
	agents   map[string]*SubAgentHandle
	mu       sync.RWMutex
	maxDepth int
	depth    int
}

// NewSubAgentManager creates a new subagent manager.
func NewSubAgentManager(maxDepth, currentDepth int) *SubAgentManager {
	return &SubAgentManager{
		agents:   make(map[string]*SubAgentHandle),
		maxDepth: maxDepth,
		depth:    currentDepth,
	}
}

// CanSpawn returns true if nesting depth allows spawning.
func (m *SubAgentManager) CanSpawn() bool {
	return m.depth < m.maxDepth
}

// Spawn creates and starts a new subagent session running in the
// background.
func (m *SubAgentManager) Spawn(ctx context.Context, client *llm.Client, profile ProviderProfile, env ExecutionEnvironment, task string, config SessionConfig) (*SubAgentHandle, error) {
	if !m.CanSpawn() {
		return nil, fmt.Errorf("maximum subagent depth (%d) reached", m.maxDepth)
	}

	id := uuid.New().String()
	subCtx, cancel := context.WithCancel(ctx)

	config.MaxSubagentDepth = m.maxDepth
	config.subagentDepth = m.depth + 1

	subSession, err := NewSession(client, profile, env, config)
	if err != nil {
		cancel()
		return nil, err
	}

	handle := &SubAgentHandle{
		ID:      id,
		Session: subSession,
		Status:  SubAgentRunning,
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	m.mu.Lock()
	m.agents[id] = handle
	m.mu.Unlock()

	go func() {
		defer close(handle.done)
		err := subSession.Submit(subCtx, task)

		history := subSession.History()
		turnsUsed := len(history)
		lastText := ""
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Kind == TurnAssistant && history[i].Assistant != nil {
				lastText = history[i].Assistant.Content
				break
			}
		}

		handle.mu.Lock()
		defer handle.mu.Unlock()
		if err != nil {
			handle.Status = SubAgentFailed
			handle.Result = &SubAgentResult{
				Output:    fmt.Sprintf("Error: %v", err),
				Success:   false,
				TurnsUsed: turnsUsed,
			}
		} else {
			handle.Status = SubAgentCompleted
			handle.Result = &SubAgentResult{
				Output:    lastText,
				Success:   true,
				TurnsUsed: turnsUsed,
			}
		}
	}()

	return handle, nil
}

// Get returns a subagent handle by ID.
func (m *SubAgentManager) Get(id string) *SubAgentHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agents[id]
}

// Close terminates a subagent.
func (m *SubAgentManager) Close(id string) error {
	m.mu.Lock()
	handle, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("subagent %s not found", id)
	}

	handle.cancel()
	handle.mu.Lock()
	if handle.Status == SubAgentRunning {
		handle.Status = SubAgentFailed
	}
	handle.mu.Unlock()
	return nil
}

// CloseAll terminates all active subagents.
func (m *SubAgentManager) CloseAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, handle := range m.agents {
		handle.cancel()
	}
}

// subagentToolNames are the registry entries RegisterSubagentTools installs.
var subagentToolNames = []string{"spawn_agent", "send_input", "wait", "close_agent"}

type spawnAgentExecutor struct {
	manager *SubAgentManager
	client  *llm.Client
	profile ProviderProfile
	config  SessionConfig
	pool    *ServerPool
}

func (e *spawnAgentExecutor) Execute(ctx context.Context, arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
	args, err := ParseToolArguments(arguments)
	if err != nil {
		return "", err
	}
	task, ok := GetStringArg(args, "task")
	if !ok || task == "" {
		return "", fmt.Errorf("task is required")
	}

	config := e.config
	config.MaxTurns = 50
	if maxTurns, ok := GetIntArg(args, "max_turns"); ok && maxTurns > 0 {
		config.MaxTurns = maxTurns
	}
	config.ScopeDir = ""

	subEnv := env
	if workingDir, ok := GetStringArg(args, "working_dir"); ok && workingDir != "" {
		scoped, err := NewScopedExecutionEnvironment(env, workingDir)
		if err != nil {
			return "", err
		}
		subEnv = scoped
	}

	// The subagent inherits the parent's tool surface: a cloned registry
	// keeps external server tools callable through the parent's pool
	// without letting the child's own registrations leak back.
	subProfile := NewProviderProfile(e.profile.ID(), e.profile.ModelID())
	subProfile.SetToolRegistry(e.profile.ToolRegistry().Clone())
	config.sharedPool = e.pool

	handle, err := e.manager.Spawn(ctx, e.client, subProfile, subEnv, task, config)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Subagent spawned with ID: %s\nStatus: %s", handle.ID, handle.Status), nil
}

type waitAgentExecutor struct {
	manager *SubAgentManager
}

func (e *waitAgentExecutor) Execute(ctx context.Context, arguments json.RawMessage, _ ExecutionEnvironment) (string, error) {
	args, err := ParseToolArguments(arguments)
	if err != nil {
		return "", err
	}
	agentID, _ := GetStringArg(args, "agent_id")

	handle := e.manager.Get(agentID)
	if handle == nil {
		return "", fmt.Errorf("subagent %s not found", agentID)
	}

	select {
	case <-handle.Done():
	case <-ctx.Done():
		return "", ctx.Err()
	}

	status, result := handle.Snapshot()
	if result != nil {
		return fmt.Sprintf("Status: %s\nTurns used: %d\nOutput:\n%s",
			status, result.TurnsUsed, result.Output), nil
	}
	return fmt.Sprintf("Status: %s", status), nil
}

// RegisterSubagentTools registers spawn_agent, send_input, wait, and
// close_agent tools on the given registry. Spawned agents share the given
// server pool with their parent.
func RegisterSubagentTools(reg *ToolRegistry, manager *SubAgentManager, client *llm.Client, profile ProviderProfile, env ExecutionEnvironment, config SessionConfig, pool *ServerPool) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "spawn_agent",
			Description: "Spawn a subagent to handle a scoped task autonomously.",
			Parameters: objectSchema(map[string]any{
				"task":        stringProp("Natural language task description."),
				"working_dir": stringProp("Subdirectory to scope the agent to."),
				"max_turns":   intProp("Turn limit for the subagent. Default: 50."),
			}, "task"),
		},
		Executor: &spawnAgentExecutor{manager: manager, client: client, profile: profile, config: config, pool: pool},
	})

	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "send_input",
			Description: "Send a message to a running subagent.",
			Parameters: objectSchema(map[string]any{
				"agent_id": stringProp("The subagent ID."),
				"message":  stringProp("Message to send."),
			}, "agent_id", "message"),
		},
		Executor: ToolFunc(func(_ context.Context, arguments json.RawMessage, _ ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			agentID, _ := GetStringArg(args, "agent_id")
			message, _ := GetStringArg(args, "message")

			handle := manager.Get(agentID)
			if handle == nil {
				return "", fmt.Errorf("subagent %s not found", agentID)
			}

			handle.Session.Steer(message)
			return fmt.Sprintf("Message sent to subagent %s", agentID), nil
		}),
	})

	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "wait",
			Description: "Wait for a subagent to complete and return its result.",
			Parameters: objectSchema(map[string]any{
				"agent_id": stringProp("The subagent ID."),
			}, "agent_id"),
		},
		Executor: &waitAgentExecutor{manager: manager},
	})

	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "close_agent",
			Description: "Terminate a subagent.",
			Parameters: objectSchema(map[string]any{
				"agent_id": stringProp("The subagent ID."),
			}, "agent_id"),
		},
		Executor: ToolFunc(func(_ context.Context, arguments json.RawMessage, _ ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			agentID, _ := GetStringArg(args, "agent_id")

			if err := manager.Close(agentID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Subagent %s terminated", agentID), nil
		}),
	})
}
