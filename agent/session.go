package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/substratelabs/orbit/llm"
)

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateIdle          SessionState = "idle"
	StateProcessing    SessionState = "processing"
	StateAwaitingInput SessionState = "awaiting_input"
	StateClosed        SessionState = "closed"
)

// TurnRecorder persists turns as they are appended to the history.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, sessionID string, turn Turn) error
}

// Session is the central orchestrator for the agentic loop. Submit drives
// one user input through model calls and tool rounds until the model stops
// calling tools or a limit fires.
type Session struct {
	id            string
	profile       ProviderProfile
	env           ExecutionEnvironment
	history       []Turn
	emitter       *EventEmitter
	config        SessionConfig
	state         SessionState
	client        *llm.Client
	pool          *ServerPool
	ownsPool      bool
	recorder      TurnRecorder
	steeringQueue []string
	followupQueue []string
	subagents     *SubAgentManager
	abortSignaled bool
	mu            sync.Mutex
}

// NewSession creates a session with the given profile, execution
// environment, and configuration.
func NewSession(client *llm.Client, profile ProviderProfile, env ExecutionEnvironment, config SessionConfig) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sessionEnv := env
	if config.ScopeDir != "" {
		scoped, err := NewScopedExecutionEnvironment(env, config.ScopeDir)
		if err != nil {
			return nil, err
		}
		sessionEnv = scoped
	}

	// Core tool timeouts follow the session config, not the profile defaults.
	RegisterCoreTools(profile.ToolRegistry(), config.DefaultCommandTimeoutMs, config.MaxCommandTimeoutMs)

	pool := config.sharedPool
	if pool == nil {
		pool = NewServerPool()
	}

	sessionID := uuid.New().String()
	s := &Session{
		id:        sessionID,
		profile:   profile,
		env:       sessionEnv,
		history:   make([]Turn, 0),
		emitter:   NewEventEmitter(sessionID, config.EventBufferSize),
		config:    config,
		state:     StateIdle,
		client:    client,
		pool:      pool,
		ownsPool:  config.sharedPool == nil,
		subagents: NewSubAgentManager(config.MaxSubagentDepth, config.subagentDepth),
	}

	if s.subagents.CanSpawn() {
		RegisterSubagentTools(profile.ToolRegistry(), s.subagents, client, profile, sessionEnv, config, pool)
	} else {
		// A registry inherited from a parent may carry that parent's
		// subagent tools; they must not be callable past the depth limit.
		for _, name := range subagentToolNames {
			profile.ToolRegistry().Unregister(name)
		}
	}

	s.emitter.Emit(EventSessionStart, map[string]any{
		"provider": profile.ID(),
		"model":    profile.ModelID(),
	})
	return s, nil
}

// ConnectExternalServers connects each configured MCP server, pools it, and
// registers its tools. A failing server is reported as a warning event and
// skipped.
func (s *Session) ConnectExternalServers(ctx context.Context) []ServerSummary {
	for _, cfg := range s.config.MCPServers {
		server, err := ConnectMCPServer(ctx, cfg)
		if err != nil {
			s.emitter.Emit(EventWarning, map[string]any{
				"message": fmt.Sprintf("external server %s unavailable: %v", cfg.ID, err),
			})
			continue
		}
		s.pool.Add(server)
	}
	return RegisterServerTools(ctx, s.profile.ToolRegistry(), s.pool)
}

// ServerPool exposes the external server pool, mainly for registering
// servers constructed by the host.
func (s *Session) ServerPool() *ServerPool { return s.pool }

// SetRecorder installs a turn recorder for persistence.
func (s *Session) SetRecorder(r TurnRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = r
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Turn, len(s.history))
	copy(h, s.history)
	return h
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Steer queues a message to be injected after the current tool round.
func (s *Session) Steer(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steeringQueue = append(s.steeringQueue, message)
}

// FollowUp queues a message to be processed after the current input
// completes.
func (s *Session) FollowUp(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followupQueue = append(s.followupQueue, message)
}

// Abort signals the session to stop processing after the current round.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortSignaled = true
}

// Close terminates the session and cleans up resources. Safe to call more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.subagents.CloseAll()
	// A shared pool belongs to the parent session and outlives this one.
	if s.ownsPool {
		if err := s.pool.Close(); err != nil {
			s.emitter.Emit(EventWarning, map[string]any{
				"message": fmt.Sprintf("closing external servers: %v", err),
			})
		}
	}
	s.emitter.Emit(EventSessionEnd, map[string]any{
		"state": string(StateClosed),
	})
	s.emitter.Close()
}

// SetReasoningEffort changes the reasoning effort for subsequent model calls.
func (s *Session) SetReasoningEffort(effort string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.ReasoningEffort = effort
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	if prev != state {
		s.emitter.Emit(EventStateChange, map[string]any{
			"from": string(prev),
			"to":   string(state),
		})
	}
}

// Submit processes a user input through the agentic loop. It returns once
// the session settles in Idle, AwaitingInput, or Closed.
func (s *Session) Submit(ctx context.Context, userInput string) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	if s.state == StateProcessing {
		s.mu.Unlock()
		return fmt.Errorf("session is already processing input")
	}
	s.abortSignaled = false
	s.mu.Unlock()
	s.setState(StateProcessing)

	return s.processInput(ctx, userInput)
}

func (s *Session) appendTurn(ctx context.Context, turn Turn) {
	s.mu.Lock()
	s.history = append(s.history, turn)
	recorder := s.recorder
	s.mu.Unlock()
	if recorder != nil {
		if err := recorder.RecordTurn(ctx, s.id, turn); err != nil {
			s.emitter.Emit(EventWarning, map[string]any{
				"message": fmt.Sprintf("persisting turn: %v", err),
			})
		}
	}
}

// processInput is the core agentic loop.
func (s *Session) processInput(ctx context.Context, userInput string) error {
	s.appendTurn(ctx, NewUserTurn(userInput))
	s.emitter.Emit(EventUserInput, map[string]any{
		"content": userInput,
	})

	s.drainSteering(ctx)

	roundCount := 0
	hitRoundLimit := false

	for {
		s.mu.Lock()
		maxRounds := s.config.MaxToolRoundsPerInput
		maxTurns := s.config.MaxTurns
		aborted := s.abortSignaled
		s.mu.Unlock()

		if roundCount >= maxRounds {
			hitRoundLimit = true
			s.emitter.Emit(EventTurnLimit, map[string]any{
				"round": roundCount,
			})
			break
		}

		// Lifetime turn exhaustion closes the session outright.
		if maxTurns > 0 && s.countTurns() >= maxTurns {
			s.emitter.Emit(EventTurnLimit, map[string]any{
				"total_turns": s.countTurns(),
			})
			s.Close()
			return nil
		}

		if aborted {
			break
		}

		select {
		case <-ctx.Done():
			s.emitter.Emit(EventError, map[string]any{
				"error": "context cancelled",
			})
			s.Close()
			return ctx.Err()
		default:
		}

		response, err := s.callModel(ctx)
		if err != nil {
			s.emitter.Emit(EventError, map[string]any{
				"error": err.Error(),
			})
			if !llm.IsRetryable(err) {
				s.Close()
				return fmt.Errorf("unrecoverable model error: %w", err)
			}
			// The client already retried; surface the residual error but
			// leave the session usable.
			s.setState(StateIdle)
			return fmt.Errorf("model error after retries: %w", err)
		}

		toolCalls := response.ToolCalls()
		s.appendTurn(ctx, NewAssistantTurn(
			response.Text(),
			toolCalls,
			response.Reasoning(),
			response.Usage,
			response.ID,
		))

		s.checkContextUsage()

		if len(toolCalls) == 0 {
			break
		}

		roundCount++
		results := s.executeToolCalls(ctx, toolCalls)
		s.appendTurn(ctx, NewToolResultsTurn(results))

		s.drainSteering(ctx)

		s.mu.Lock()
		enableLoop := s.config.EnableLoopDetection
		loopWindow := s.config.LoopDetectionWindow
		s.mu.Unlock()

		if enableLoop && DetectLoop(s.History(), loopWindow) {
			warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", loopWindow)
			s.appendTurn(ctx, NewSteeringTurn(warning))
			s.emitter.Emit(EventLoopDetection, map[string]any{
				"message": warning,
			})
		}
	}

	s.mu.Lock()
	if len(s.followupQueue) > 0 {
		nextInput := s.followupQueue[0]
		s.followupQueue = s.followupQueue[1:]
		s.mu.Unlock()
		return s.processInput(ctx, nextInput)
	}
	s.mu.Unlock()

	if hitRoundLimit {
		s.setState(StateAwaitingInput)
	} else {
		s.setState(StateIdle)
	}
	return nil
}

// callModel issues one streaming model call, re-emitting text and reasoning
// stream events as session events, and returns the final response. Tool call
// Start/End events are emitted at dispatch time, exactly once per call.
func (s *Session) callModel(ctx context.Context) (*llm.Response, error) {
	request := s.buildRequest()

	events, err := s.client.Stream(ctx, request)
	if err != nil {
		return nil, err
	}

	var response *llm.Response
	for event := range events {
		switch event.Type {
		case llm.TextStart:
			s.emitter.Emit(EventAssistantTextStart, nil)
		case llm.TextDelta:
			s.emitter.Emit(EventAssistantTextDelta, map[string]any{
				"delta": event.Delta,
			})
		case llm.TextEnd:
			s.emitter.Emit(EventAssistantTextEnd, nil)
		case llm.ReasoningDelta:
			s.emitter.Emit(EventAssistantReasoning, map[string]any{
				"delta": event.Reasoning,
			})
		case llm.StreamFinish:
			response = event.Response
		case llm.StreamFailed:
			return nil, event.Err
		}
	}
	if response == nil {
		return nil, &llm.StreamError{
			SDKError: llm.SDKError{Message: "stream ended without a final response"},
		}
	}
	return response, nil
}

func (s *Session) buildRequest() llm.Request {
	projectDocs := DiscoverProjectDocs(s.env.WorkingDirectory(), s.profile.ID())

	s.mu.Lock()
	userInstructions := s.config.UserInstructions
	reasoningEffort := s.config.ReasoningEffort
	temperature := s.config.Temperature
	s.mu.Unlock()

	systemPrompt := s.profile.BuildSystemPrompt(s.env, projectDocs, userInstructions)
	messages := ConvertHistoryToMessages(s.History())

	return llm.Request{
		Model:           s.profile.ModelID(),
		Provider:        s.profile.ID(),
		Messages:        append([]llm.Message{llm.SystemMessage(systemPrompt)}, messages...),
		Tools:           s.profile.Tools(),
		ToolChoice:      &llm.ToolChoice{Mode: "auto"},
		Temperature:     temperature,
		ReasoningEffort: reasoningEffort,
		ProviderOptions: encodeProviderOptions(s.profile.ProviderOptions()),
	}
}

func encodeProviderOptions(options map[string]any) map[string]json.RawMessage {
	if len(options) == 0 {
		return nil
	}
	encoded := make(map[string]json.RawMessage, len(options))
	for ns, v := range options {
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		encoded[ns] = data
	}
	return encoded
}

// drainSteering injects all queued steering messages into the history.
func (s *Session) drainSteering(ctx context.Context) {
	s.mu.Lock()
	messages := make([]string, len(s.steeringQueue))
	copy(messages, s.steeringQueue)
	s.steeringQueue = s.steeringQueue[:0]
	s.mu.Unlock()

	for _, msg := range messages {
		s.appendTurn(ctx, NewSteeringTurn(msg))
		s.emitter.Emit(EventSteeringInjected, map[string]any{
			"content": msg,
		})
	}
}

// executeToolCalls dispatches tool calls, in parallel when the profile
// allows. Results always rejoin in call order.
func (s *Session) executeToolCalls(ctx context.Context, toolCalls []llm.ToolCall) []llm.ToolResult {
	results := make([]llm.ToolResult, len(toolCalls))

	if s.profile.SupportsParallelToolCalls() && len(toolCalls) > 1 {
		var wg sync.WaitGroup
		for i, tc := range toolCalls {
			wg.Add(1)
			go func(idx int, call llm.ToolCall) {
				defer wg.Done()
				results[idx] = s.executeSingleTool(ctx, call)
			}(i, tc)
		}
		wg.Wait()
		return results
	}

	for i, tc := range toolCalls {
		results[i] = s.executeSingleTool(ctx, tc)
	}
	return results
}

// executeSingleTool handles the full tool execution pipeline:
// lookup, execute, truncate, emit.
func (s *Session) executeSingleTool(ctx context.Context, toolCall llm.ToolCall) llm.ToolResult {
	s.emitter.Emit(EventToolCallStart, map[string]any{
		"tool_name": toolCall.Name,
		"call_id":   toolCall.ID,
	})

	// Arguments that never parsed as JSON fail before dispatch.
	if toolCall.ParseError != "" {
		errorMsg := fmt.Sprintf("Invalid arguments for %s: %s", toolCall.Name, toolCall.ParseError)
		s.emitter.Emit(EventToolCallEnd, map[string]any{
			"call_id": toolCall.ID,
			"error":   errorMsg,
		})
		return llm.ToolResult{ToolCallID: toolCall.ID, Content: errorMsg, IsError: true}
	}

	registered := s.profile.ToolRegistry().Get(toolCall.Name)
	if registered == nil {
		errorMsg := fmt.Sprintf("Unknown tool: %s", toolCall.Name)
		s.emitter.Emit(EventToolCallEnd, map[string]any{
			"call_id": toolCall.ID,
			"error":   errorMsg,
		})
		return llm.ToolResult{ToolCallID: toolCall.ID, Content: errorMsg, IsError: true}
	}

	// Every dispatch runs under a deadline: the configured ceiling, lowered
	// to the call's own timeout_ms when that is smaller. This bounds
	// external server tools the same as core tools.
	s.mu.Lock()
	timeoutMs := s.config.MaxCommandTimeoutMs
	s.mu.Unlock()
	if args, err := ParseToolArguments(toolCall.Arguments); err == nil {
		if requested, ok := GetIntArg(args, "timeout_ms"); ok && requested > 0 && requested < timeoutMs {
			timeoutMs = requested
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	rawOutput, err := registered.Executor.Execute(callCtx, toolCall.Arguments, s.env)
	if err != nil {
		errorMsg := fmt.Sprintf("Tool error (%s): %v", toolCall.Name, err)
		s.emitter.Emit(EventToolCallEnd, map[string]any{
			"call_id": toolCall.ID,
			"error":   errorMsg,
		})
		return llm.ToolResult{ToolCallID: toolCall.ID, Content: errorMsg, IsError: true}
	}

	s.mu.Lock()
	charLimits := s.config.ToolCharLimits
	lineLimits := s.config.ToolLineLimits
	s.mu.Unlock()
	truncated := TruncateToolOutput(rawOutput, toolCall.Name, charLimits, lineLimits)

	// The event stream carries the full, untruncated output.
	s.emitter.Emit(EventToolCallEnd, map[string]any{
		"call_id": toolCall.ID,
		"output":  rawOutput,
	})

	return llm.ToolResult{ToolCallID: toolCall.ID, Content: truncated}
}

// countTurns returns the number of user and assistant turns in the history.
func (s *Session) countTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, turn := range s.history {
		if turn.Kind == TurnUser || turn.Kind == TurnAssistant {
			count++
		}
	}
	return count
}

// checkContextUsage emits a warning when estimated usage exceeds 80% of the
// model's context window.
func (s *Session) checkContextUsage() {
	history := s.History()
	contextWindow := s.profile.ContextWindowSize()
	if contextWindow <= 0 {
		return
	}

	totalChars := 0
	for _, turn := range history {
		totalChars += len(turn.TextContent())
		if turn.Kind == TurnToolResults && turn.ToolResults != nil {
			for _, r := range turn.ToolResults.Results {
				totalChars += len(r.Content)
			}
		}
	}

	approxTokens := totalChars / 4
	threshold := int(float64(contextWindow) * 0.8)
	if approxTokens > threshold {
		pct := int(float64(approxTokens) / float64(contextWindow) * 100)
		s.emitter.Emit(EventWarning, map[string]any{
			"message": fmt.Sprintf("Context usage at ~%d%% of context window", pct),
		})
	}
}
