package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"

	// The Messages API requires max_tokens on every request.
	anthropicDefaultMaxTokens = 4096
)

// AnthropicAdapter speaks the Anthropic Messages API.
type AnthropicAdapter struct {
	api *httpAPI
}

// AnthropicOption configures the adapter.
type AnthropicOption func(*anthropicConfig)

type anthropicConfig struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	beta       []string
}

// WithAnthropicAPIKey sets the API key explicitly.
func WithAnthropicAPIKey(key string) AnthropicOption {
	return func(c *anthropicConfig) { c.apiKey = key }
}

// WithAnthropicBaseURL overrides the API endpoint.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(c *anthropicConfig) { c.baseURL = url }
}

// WithAnthropicHTTPClient supplies a custom HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(c *anthropicConfig) { c.httpClient = client }
}

// WithAnthropicBeta adds anthropic-beta header values.
func WithAnthropicBeta(features ...string) AnthropicOption {
	return func(c *anthropicConfig) { c.beta = append(c.beta, features...) }
}

// NewAnthropicAdapter creates an adapter. The API key falls back to
// ANTHROPIC_API_KEY when not set explicitly.
func NewAnthropicAdapter(opts ...AnthropicOption) (*AnthropicAdapter, error) {
	cfg := anthropicConfig{baseURL: anthropicDefaultBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "anthropic: no API key configured and ANTHROPIC_API_KEY is not set",
		}}
	}

	api := newHTTPAPI("anthropic", cfg.baseURL, cfg.httpClient, func(h http.Header) {
		h.Set("x-api-key", cfg.apiKey)
		h.Set("anthropic-version", anthropicVersion)
		for _, b := range cfg.beta {
			h.Add("anthropic-beta", b)
		}
	})
	return &AnthropicAdapter{api: api}, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Complete sends a blocking request to /messages.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := a.buildRequest(req, false)
	if err != nil {
		return nil, err
	}
	raw, header, err := a.api.postJSON(ctx, "/messages", body)
	if err != nil {
		return nil, err
	}
	resp, err := a.parseResponse(req.Model, raw)
	if err != nil {
		return nil, err
	}
	resp.RateLimit = parseRateLimit(header)
	return resp, nil
}

// Stream sends a streaming request to /messages and translates the
// content-block SSE lifecycle into unified events.
func (a *AnthropicAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body, err := a.buildRequest(req, true)
	if err != nil {
		return nil, err
	}
	rc, err := a.api.postStream(ctx, "/messages", body)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer rc.Close()
		runStream(ctx, events, NewSSEReader(rc), newAnthropicStream(req.Model))
	}()
	return events, nil
}

// ListModels queries the live /models endpoint.
func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	raw, err := a.api.getJSON(ctx, "/models")
	if err != nil {
		return nil, err
	}
	data, _ := raw["data"].([]any)
	models := make([]ModelInfo, 0, len(data))
	for _, item := range data {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := stringField(obj, "id")
		if id == "" {
			continue
		}
		if known := GetModelInfo(id); known != nil {
			models = append(models, *known)
			continue
		}
		models = append(models, ModelInfo{
			ID:          id,
			Provider:    "anthropic",
			DisplayName: stringField(obj, "display_name"),
		})
	}
	return models, nil
}

// buildRequest translates a unified Request into the Messages API payload.
// System messages lift into the top-level system field and must be text-only.
func (a *AnthropicAdapter) buildRequest(req Request, stream bool) (map[string]any, error) {
	if req.Model == "" {
		return nil, NewInvalidRequest("anthropic", "model is required")
	}

	var system string
	var messages []any
	for i, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem, RoleDeveloper:
			if !msg.IsTextOnly() {
				return nil, NewInvalidRequest("anthropic",
					fmt.Sprintf("message %d: system content must be text-only", i))
			}
			if system != "" {
				system += "\n\n"
			}
			system += msg.TextContent()
		default:
			translated, err := a.translateMessage(i, msg)
			if err != nil {
				return nil, err
			}
			messages = append(messages, translated)
		}
	}

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body := map[string]any{
		"model":      req.Model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if stream {
		body["stream"] = true
	}
	if system != "" {
		body["system"] = system
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if len(req.StopSequences) > 0 {
		body["stop_sequences"] = req.StopSequences
	}
	if req.ReasoningEffort != "" {
		body["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": anthropicThinkingBudget(req.ReasoningEffort),
		}
	}
	if len(req.Tools) > 0 {
		tools := make([]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.Parameters,
			})
		}
		body["tools"] = tools
	}
	if req.ToolChoice != nil {
		choice, err := a.translateToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		body["tool_choice"] = choice
	}

	if opts, ok := req.ProviderOptions["anthropic"]; ok {
		var extra map[string]any
		if err := json.Unmarshal(opts, &extra); err != nil {
			return nil, NewInvalidRequest("anthropic", "provider_options.anthropic is not a JSON object")
		}
		for k, v := range extra {
			body[k] = v
		}
	}
	return body, nil
}

func anthropicThinkingBudget(effort string) int {
	switch effort {
	case "low":
		return 2048
	case "high":
		return 16384
	default:
		return 8192
	}
}

// translateMessage converts a message into the Messages API shape. Tool
// results ride in user-role messages as tool_result blocks.
func (a *AnthropicAdapter) translateMessage(index int, msg Message) (map[string]any, error) {
	role := "user"
	if msg.Role == RoleAssistant {
		role = "assistant"
	}

	var content []any
	for _, part := range msg.Content {
		switch part.Kind {
		case ContentText:
			content = append(content, map[string]any{"type": "text", "text": part.Text})
		case ContentImage:
			block, err := anthropicMediaBlock("image", part.Image.URL, part.Image.Data, part.Image.MediaType)
			if err != nil {
				return nil, NewInvalidRequest("anthropic", fmt.Sprintf("message %d: %v", index, err))
			}
			content = append(content, block)
		case ContentDocument:
			block, err := anthropicMediaBlock("document", part.Document.URL, part.Document.Data, part.Document.MediaType)
			if err != nil {
				return nil, NewInvalidRequest("anthropic", fmt.Sprintf("message %d: %v", index, err))
			}
			content = append(content, block)
		case ContentToolCall:
			var input any = map[string]any{}
			if len(part.ToolCall.Arguments) > 0 {
				_ = json.Unmarshal(part.ToolCall.Arguments, &input)
			}
			content = append(content, map[string]any{
				"type":  "tool_use",
				"id":    part.ToolCall.ID,
				"name":  part.ToolCall.Name,
				"input": input,
			})
		case ContentToolResult:
			content = append(content, map[string]any{
				"type":        "tool_result",
				"tool_use_id": part.ToolResult.ToolCallID,
				"content":     rawToResultString(part.ToolResult.Content),
				"is_error":    part.ToolResult.IsError,
			})
		case ContentThinking:
			content = append(content, map[string]any{
				"type":      "thinking",
				"thinking":  part.Thinking.Text,
				"signature": part.Thinking.Signature,
			})
		case ContentRedactedThinking:
			content = append(content, map[string]any{
				"type": "redacted_thinking",
				"data": string(part.Extension.Payload),
			})
		default:
			return nil, NewInvalidRequest("anthropic",
				fmt.Sprintf("message %d: content kind %q is not supported", index, part.Kind))
		}
	}
	return map[string]any{"role": role, "content": content}, nil
}

func anthropicMediaBlock(blockType, url string, data []byte, mediaType string) (map[string]any, error) {
	var source map[string]any
	switch {
	case url != "":
		source = map[string]any{"type": "url", "url": url}
	case len(data) > 0:
		source = map[string]any{
			"type":       "base64",
			"media_type": mediaType,
			"data":       dataURLPayload(data),
		}
	default:
		return nil, fmt.Errorf("%s content has neither URL nor data", blockType)
	}
	return map[string]any{"type": blockType, "source": source}, nil
}

func (a *AnthropicAdapter) translateToolChoice(choice *ToolChoice) (map[string]any, error) {
	switch choice.Mode {
	case "auto":
		return map[string]any{"type": "auto"}, nil
	case "none":
		return map[string]any{"type": "none"}, nil
	case "required":
		return map[string]any{"type": "any"}, nil
	case "named":
		if choice.ToolName == "" {
			return nil, NewInvalidRequest("anthropic", "tool_choice mode \"named\" requires a tool name")
		}
		return map[string]any{"type": "tool", "name": choice.ToolName}, nil
	default:
		return nil, NewInvalidRequest("anthropic", fmt.Sprintf("unknown tool_choice mode %q", choice.Mode))
	}
}

// parseResponse translates a Messages API body into the unified Response.
func (a *AnthropicAdapter) parseResponse(model string, raw map[string]any) (*Response, error) {
	resp := &Response{
		Provider: "anthropic",
		Model:    model,
		Raw:      raw,
		Message:  Message{Role: RoleAssistant},
	}
	resp.ID = stringField(raw, "id")
	if m := stringField(raw, "model"); m != "" {
		resp.Model = m
	}

	content, _ := raw["content"].([]any)
	for _, block := range content {
		obj, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch stringField(obj, "type") {
		case "text":
			resp.Message.Content = append(resp.Message.Content, TextPart(stringField(obj, "text")))
		case "tool_use":
			args, _ := json.Marshal(obj["input"])
			resp.Message.Content = append(resp.Message.Content,
				ToolCallPart(stringField(obj, "id"), stringField(obj, "name"), args))
		case "thinking":
			resp.Message.Content = append(resp.Message.Content,
				ThinkingPart(stringField(obj, "thinking"), stringField(obj, "signature")))
		case "redacted_thinking":
			payload, _ := json.Marshal(stringField(obj, "data"))
			resp.Message.Content = append(resp.Message.Content, RedactedThinkingPart(payload))
		}
	}

	if usage, ok := raw["usage"].(map[string]any); ok {
		resp.Usage = ParseUsage(usage)
	}
	hasToolCalls := len(resp.ToolCalls()) > 0
	resp.FinishReason = NormalizeFinishReason(stringField(raw, "stop_reason"), hasToolCalls)
	return resp, nil
}
