package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmAdapter is the fallback adapter for providers without a native wire
// translation. It flattens the conversation into a gollm prompt; tool calls
// the model emits inline are recovered on Complete, but reasoning and
// streaming tool use are lost. Prefer the native adapters when the provider
// has one.
type GollmAdapter struct {
	provider string
	model    string
	llm      gollm.LLM
}

// GollmOption configures the adapter.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extra       []gollm.ConfigOption
}

// WithGollmAPIKey sets the API key. When empty, gollm reads the provider's
// usual environment variable.
func WithGollmAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithGollmModel sets the default model.
func WithGollmModel(model string) GollmOption {
	return func(c *gollmConfig) { c.model = model }
}

// WithGollmMaxTokens sets the default max tokens.
func WithGollmMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// WithGollmTemperature sets the default temperature.
func WithGollmTemperature(t float64) GollmOption {
	return func(c *gollmConfig) { c.temperature = t }
}

// WithGollmConfig adds raw gollm configuration options.
func WithGollmConfig(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) { c.extra = append(c.extra, opts...) }
}

// NewGollmAdapter creates a fallback adapter for the named provider.
func NewGollmAdapter(provider string, opts ...GollmOption) (*GollmAdapter, error) {
	cfg := gollmConfig{maxTokens: 4096, temperature: 0.7}
	for _, opt := range opts {
		opt(&cfg)
	}

	model := cfg.model
	if model == "" {
		if catalog := CatalogModels(provider); len(catalog) > 0 {
			model = catalog[0].ID
		}
	}
	if model == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("gollm: no model configured for provider %q", provider),
		}}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries belong to the Client
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extra...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("gollm: creating LLM for provider %q failed", provider),
			Cause:   err,
		}}
	}
	return &GollmAdapter{provider: provider, model: model, llm: llm}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, llm: llm}
}

func (a *GollmAdapter) Name() string { return a.provider }

// Complete sends a blocking request through gollm. When the request carries
// tools, a function-call payload embedded in the generated text is recovered
// into structured tool calls.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt, err := a.translateRequest(req)
	if err != nil {
		return nil, err
	}
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	tr := newStreamTranslator(a.provider, a.resolveModel(req))
	if len(req.Tools) > 0 {
		text, tr.toolCalls = splitToolCallPayload(text)
	}
	tr.text.WriteString(text)
	return tr.buildResponse(), nil
}

// splitToolCallPayload strips a function-call payload from generated text.
// gollm surfaces tool use inline, commonly as a JSON array of
// {"name","arguments"} objects, sometimes wrapped in a {"tool_calls": [...]}
// envelope. Text preceding the payload is preserved; anything that does not
// decode cleanly is left untouched as plain text.
func splitToolCallPayload(text string) (string, []ToolCall) {
	start := strings.Index(text, `{"tool_calls"`)
	enveloped := start != -1
	if start == -1 {
		start = strings.Index(text, `[{"name"`)
	}
	if start == -1 {
		return text, nil
	}

	payload := []byte(strings.TrimSpace(text[start:]))
	if enveloped {
		var envelope struct {
			ToolCalls json.RawMessage `json:"tool_calls"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil || len(envelope.ToolCalls) == 0 {
			return text, nil
		}
		payload = envelope.ToolCalls
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(payload, &rawCalls); err != nil {
		return text, nil
	}

	var calls []ToolCall
	for _, rc := range rawCalls {
		if rc.Name == "" {
			continue
		}
		calls = append(calls, finishToolCall("call_"+newCallSuffix(), rc.Name, string(rc.Arguments)))
	}
	if len(calls) == 0 {
		return text, nil
	}
	return strings.TrimSpace(text[:start]), calls
}

// Stream emits unified events for a gollm token stream. Providers without
// streaming support degrade to a single delta carrying the full text.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt, err := a.translateRequest(req)
	if err != nil {
		return nil, err
	}
	a.applyRequestOptions(req)

	events := make(chan StreamEvent, 64)
	tr := newStreamTranslator(a.provider, a.resolveModel(req))

	emit := func(batch []StreamEvent) bool {
		for _, ev := range batch {
			select {
			case events <- ev:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	if !a.llm.SupportsStreaming() {
		go func() {
			defer close(events)
			text, err := a.llm.Generate(ctx, prompt)
			if err != nil {
				emit(tr.fail(a.translateError(err), nil))
				return
			}
			if !emit(tr.appendText(text, nil)) {
				return
			}
			emit(tr.end())
		}()
		return events, nil
	}

	stream, err := a.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	go func() {
		defer close(events)
		defer stream.Close()
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				emit(tr.fail(a.translateError(err), nil))
				return
			}
			if token == nil {
				continue
			}
			if !emit(tr.appendText(token.Text, nil)) {
				return
			}
		}
		emit(tr.end())
	}()
	return events, nil
}

// ListModels returns the catalog entries for this provider; gollm exposes no
// live listing.
func (a *GollmAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return CatalogModels(a.provider), nil
}

func (a *GollmAdapter) resolveModel(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return a.model
}

// translateRequest flattens the conversation into a single gollm prompt.
// Assistant turns and tool results become bracketed context lines.
func (a *GollmAdapter) translateRequest(req Request) (*gollm.Prompt, error) {
	var system strings.Builder
	var lines []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem, RoleDeveloper:
			system.WriteString(msg.TextContent())
			system.WriteString("\n")
		case RoleUser:
			lines = append(lines, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				lines = append(lines, "[Assistant]: "+text)
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				prefix := "[Tool Result]"
				if part.ToolResult.IsError {
					prefix = "[Tool Error]"
				}
				lines = append(lines, prefix+": "+rawToResultString(part.ToolResult.Content))
			}
		}
	}

	promptText := strings.Join(lines, "\n")
	if promptText == "" {
		return nil, NewInvalidRequest(a.provider, "request has no user content")
	}

	var promptOpts []gollm.PromptOption
	if s := strings.TrimSpace(system.String()); s != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(s, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(promptText, promptOpts...), nil
}

func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.TopP != nil {
		a.llm.SetOption("top_p", *req.TopP)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// translateError maps gollm's flat errors into the unified taxonomy by
// message inspection; gollm does not expose status codes.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	pe := func(status int, retryable bool) ProviderError {
		return ProviderError{
			SDKError:   SDKError{Message: msg, Cause: err},
			Provider:   a.provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	switch {
	case strings.Contains(lower, "401"), strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "invalid api key"):
		return &AuthenticationError{ProviderError: pe(401, false)}
	case strings.Contains(lower, "403"), strings.Contains(lower, "forbidden"):
		return &AccessDeniedError{ProviderError: pe(403, false)}
	case strings.Contains(lower, "404"), strings.Contains(lower, "not found"):
		return &NotFoundError{ProviderError: pe(404, false)}
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"):
		return &RateLimitError{ProviderError: pe(429, true)}
	case strings.Contains(lower, "context length"), strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{ProviderError: pe(413, false)}
	case strings.Contains(lower, "content filter"), strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: pe(0, false)}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "500"), strings.Contains(lower, "internal server"):
		return &ServerError{ProviderError: pe(500, true)}
	default:
		generic := pe(0, true)
		return &generic
	}
}
