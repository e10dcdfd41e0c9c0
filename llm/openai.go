package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

const openaiDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter speaks the OpenAI Responses API.
type OpenAIAdapter struct {
	api *httpAPI
}

// OpenAIOption configures the adapter.
type OpenAIOption func(*openaiConfig)

type openaiConfig struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	org        string
}

// WithOpenAIAPIKey sets the API key explicitly.
func WithOpenAIAPIKey(key string) OpenAIOption {
	return func(c *openaiConfig) { c.apiKey = key }
}

// WithOpenAIBaseURL overrides the API endpoint.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) { c.baseURL = url }
}

// WithOpenAIHTTPClient supplies a custom HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *openaiConfig) { c.httpClient = client }
}

// WithOpenAIOrganization sets the organization header.
func WithOpenAIOrganization(org string) OpenAIOption {
	return func(c *openaiConfig) { c.org = org }
}

// NewOpenAIAdapter creates an adapter. The API key falls back to
// OPENAI_API_KEY when not set explicitly.
func NewOpenAIAdapter(opts ...OpenAIOption) (*OpenAIAdapter, error) {
	cfg := openaiConfig{baseURL: openaiDefaultBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "openai: no API key configured and OPENAI_API_KEY is not set",
		}}
	}

	api := newHTTPAPI("openai", cfg.baseURL, cfg.httpClient, func(h http.Header) {
		h.Set("Authorization", "Bearer "+cfg.apiKey)
		if cfg.org != "" {
			h.Set("OpenAI-Organization", cfg.org)
		}
	})
	return &OpenAIAdapter{api: api}, nil
}

func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete sends a blocking request to /responses.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := a.buildRequest(req, false)
	if err != nil {
		return nil, err
	}
	raw, header, err := a.api.postJSON(ctx, "/responses", body)
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

// Stream sends a streaming request to /responses and translates the SSE
// frames into unified events.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body, err := a.buildRequest(req, true)
	if err != nil {
		return nil, err
	}
	rc, err := a.api.postStream(ctx, "/responses", body)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer rc.Close()
		runStream(ctx, events, NewSSEReader(rc), newOpenAIStream(req.Model))
	}()
	return events, nil
}

// ListModels queries the live /models endpoint.
func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
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
		id, _ := obj["id"].(string)
		if id == "" {
			continue
		}
		if known := GetModelInfo(id); known != nil {
			models = append(models, *known)
			continue
		}
		models = append(models, ModelInfo{ID: id, Provider: "openai"})
	}
	return models, nil
}

// buildRequest translates a unified Request into the Responses API payload.
func (a *OpenAIAdapter) buildRequest(req Request, stream bool) (map[string]any, error) {
	if req.Model == "" {
		return nil, NewInvalidRequest("openai", "model is required")
	}

	var input []any
	for i, msg := range req.Messages {
		items, err := a.translateMessage(i, msg)
		if err != nil {
			return nil, err
		}
		input = append(input, items...)
	}

	body := map[string]any{
		"model": req.Model,
		"input": input,
	}
	if stream {
		body["stream"] = true
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		body["max_output_tokens"] = *req.MaxTokens
	}
	if req.ReasoningEffort != "" {
		body["reasoning"] = map[string]any{"effort": req.ReasoningEffort}
	}
	if len(req.Tools) > 0 {
		tools := make([]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type":        "function",
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
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
	if req.ResponseFormat != nil {
		format, err := a.translateResponseFormat(req.ResponseFormat)
		if err != nil {
			return nil, err
		}
		body["text"] = map[string]any{"format": format}
	}

	if opts, ok := req.ProviderOptions["openai"]; ok {
		var extra map[string]any
		if err := json.Unmarshal(opts, &extra); err != nil {
			return nil, NewInvalidRequest("openai", "provider_options.openai is not a JSON object")
		}
		for k, v := range extra {
			body[k] = v
		}
	}
	return body, nil
}

// translateMessage converts one unified message into Responses API input
// items. Assistant tool calls and tool results become standalone items.
func (a *OpenAIAdapter) translateMessage(index int, msg Message) ([]any, error) {
	switch msg.Role {
	case RoleSystem, RoleDeveloper:
		if !msg.IsTextOnly() {
			return nil, NewInvalidRequest("openai",
				fmt.Sprintf("message %d: system content must be text-only", index))
		}
		return []any{map[string]any{"role": "developer", "content": msg.TextContent()}}, nil

	case RoleUser:
		var content []any
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				content = append(content, map[string]any{"type": "input_text", "text": part.Text})
			case ContentImage:
				content = append(content, translateOpenAIImage(part.Image))
			case ContentDocument:
				content = append(content, translateOpenAIDocument(part.Document))
			default:
				return nil, NewInvalidRequest("openai",
					fmt.Sprintf("message %d: user content kind %q is not supported", index, part.Kind))
			}
		}
		return []any{map[string]any{"role": "user", "content": content}}, nil

	case RoleAssistant:
		var items []any
		var textContent []any
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				textContent = append(textContent, map[string]any{"type": "output_text", "text": part.Text})
			case ContentToolCall:
				items = append(items, map[string]any{
					"type":      "function_call",
					"call_id":   part.ToolCall.ID,
					"name":      part.ToolCall.Name,
					"arguments": string(part.ToolCall.Arguments),
				})
			case ContentThinking, ContentRedactedThinking:
				// Reasoning is not replayable through the public input shape.
			case ContentExtension:
				if part.Extension.Namespace == "openai" {
					var item map[string]any
					if err := json.Unmarshal(part.Extension.Payload, &item); err == nil {
						items = append(items, item)
					}
				}
			default:
				return nil, NewInvalidRequest("openai",
					fmt.Sprintf("message %d: assistant content kind %q is not supported", index, part.Kind))
			}
		}
		var out []any
		if len(textContent) > 0 {
			out = append(out, map[string]any{"role": "assistant", "content": textContent})
		}
		return append(out, items...), nil

	case RoleTool:
		var items []any
		for _, part := range msg.Content {
			if part.Kind != ContentToolResult {
				return nil, NewInvalidRequest("openai",
					fmt.Sprintf("message %d: tool message must contain only tool results", index))
			}
			items = append(items, map[string]any{
				"type":    "function_call_output",
				"call_id": part.ToolResult.ToolCallID,
				"output":  rawToResultString(part.ToolResult.Content),
			})
		}
		return items, nil

	default:
		return nil, NewInvalidRequest("openai", fmt.Sprintf("message %d: unknown role %q", index, msg.Role))
	}
}

func translateOpenAIImage(img *ImageData) map[string]any {
	item := map[string]any{"type": "input_image"}
	if img.URL != "" {
		item["image_url"] = img.URL
	} else if len(img.Data) > 0 {
		item["image_url"] = dataURL(img.MediaType, img.Data)
	}
	if img.Detail != "" {
		item["detail"] = img.Detail
	}
	return item
}

func translateOpenAIDocument(doc *DocumentData) map[string]any {
	item := map[string]any{"type": "input_file"}
	if doc.URL != "" {
		item["file_url"] = doc.URL
	} else if len(doc.Data) > 0 {
		item["file_data"] = dataURL(doc.MediaType, doc.Data)
	}
	if doc.FileName != "" {
		item["filename"] = doc.FileName
	}
	return item
}

func (a *OpenAIAdapter) translateToolChoice(choice *ToolChoice) (any, error) {
	switch choice.Mode {
	case "auto", "none", "required":
		return choice.Mode, nil
	case "named":
		if choice.ToolName == "" {
			return nil, NewInvalidRequest("openai", "tool_choice mode \"named\" requires a tool name")
		}
		return map[string]any{"type": "function", "name": choice.ToolName}, nil
	default:
		return nil, NewInvalidRequest("openai", fmt.Sprintf("unknown tool_choice mode %q", choice.Mode))
	}
}

func (a *OpenAIAdapter) translateResponseFormat(format *ResponseFormat) (map[string]any, error) {
	switch format.Type {
	case "", "text":
		return map[string]any{"type": "text"}, nil
	case "json":
		return map[string]any{"type": "json_object"}, nil
	case "json_schema":
		if format.JSONSchema == nil {
			return nil, NewInvalidRequest("openai", "response_format json_schema requires a schema")
		}
		return map[string]any{
			"type":   "json_schema",
			"name":   "response",
			"schema": format.JSONSchema,
			"strict": format.Strict,
		}, nil
	default:
		return nil, NewInvalidRequest("openai", fmt.Sprintf("unknown response_format type %q", format.Type))
	}
}

// parseResponse translates a Responses API body into the unified Response.
func (a *OpenAIAdapter) parseResponse(model string, raw map[string]any) (*Response, error) {
	resp := &Response{
		Provider: "openai",
		Model:    model,
		Raw:      raw,
		Message:  Message{Role: RoleAssistant},
	}
	if id, ok := raw["id"].(string); ok {
		resp.ID = id
	}
	if m, ok := raw["model"].(string); ok && m != "" {
		resp.Model = m
	}

	output, _ := raw["output"].([]any)
	for _, item := range output {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		parts, warning := parseOpenAIOutputItem(obj)
		resp.Message.Content = append(resp.Message.Content, parts...)
		if warning != nil {
			resp.Warnings = append(resp.Warnings, *warning)
		}
	}

	if usage, ok := raw["usage"].(map[string]any); ok {
		resp.Usage = ParseUsage(usage)
	}

	finishRaw, _ := raw["status"].(string)
	if finishRaw == "incomplete" {
		if details, ok := raw["incomplete_details"].(map[string]any); ok {
			if reason, ok := details["reason"].(string); ok && reason != "" {
				finishRaw = reason
			}
		}
	}
	hasToolCalls := len(resp.ToolCalls()) > 0
	resp.FinishReason = NormalizeFinishReason(finishRaw, hasToolCalls)
	return resp, nil
}

// parseOpenAIOutputItem translates one output item. The correlation id for
// tool calls is call_id when present, falling back to the item id.
func parseOpenAIOutputItem(obj map[string]any) ([]ContentPart, *Warning) {
	itemType, _ := obj["type"].(string)
	switch itemType {
	case "message":
		var parts []ContentPart
		var warning *Warning
		content, _ := obj["content"].([]any)
		for _, c := range content {
			cobj, ok := c.(map[string]any)
			if !ok {
				continue
			}
			switch cobj["type"] {
			case "output_text":
				if text, ok := cobj["text"].(string); ok {
					parts = append(parts, TextPart(text))
				}
			case "refusal":
				if text, ok := cobj["refusal"].(string); ok {
					warning = &Warning{Message: text, Code: "refusal"}
				}
			}
		}
		return parts, warning

	case "reasoning":
		var parts []ContentPart
		summary, _ := obj["summary"].([]any)
		for _, s := range summary {
			sobj, ok := s.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := sobj["text"].(string); ok && text != "" {
				parts = append(parts, ThinkingPart(text, ""))
			}
		}
		return parts, nil

	case "function_call":
		id := openAICallID(obj)
		name, _ := obj["name"].(string)
		args, _ := obj["arguments"].(string)
		call := finishToolCall(id, name, args)
		part := ToolCallPart(call.ID, call.Name, call.Arguments)
		return []ContentPart{part}, nil

	case "custom_tool_call":
		id := openAICallID(obj)
		name, _ := obj["name"].(string)
		input, _ := obj["input"].(string)
		args, _ := json.Marshal(map[string]string{"input": input})
		part := ContentPart{Kind: ContentToolCall, ToolCall: &ToolCallData{
			ID: id, Name: name, Arguments: args, CallType: CallCustomTool,
		}}
		return []ContentPart{part}, nil

	case "local_shell_call":
		id := openAICallID(obj)
		args, _ := json.Marshal(obj["action"])
		part := ContentPart{Kind: ContentToolCall, ToolCall: &ToolCallData{
			ID: id, Name: "local_shell", Arguments: args, CallType: CallLocalShell,
		}}
		return []ContentPart{part}, nil

	default:
		return nil, nil
	}
}

// openAICallID prefers call_id over the output item id; only call_id
// round-trips in function_call_output items.
func openAICallID(obj map[string]any) string {
	if id, ok := obj["call_id"].(string); ok && id != "" {
		return id
	}
	id, _ := obj["id"].(string)
	return id
}
