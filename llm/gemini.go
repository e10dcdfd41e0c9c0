package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiAdapter speaks the Gemini generateContent API.
type GeminiAdapter struct {
	api *httpAPI
}

// GeminiOption configures the adapter.
type GeminiOption func(*geminiConfig)

type geminiConfig struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// WithGeminiAPIKey sets the API key explicitly.
func WithGeminiAPIKey(key string) GeminiOption {
	return func(c *geminiConfig) { c.apiKey = key }
}

// WithGeminiBaseURL overrides the API endpoint.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(c *geminiConfig) { c.baseURL = url }
}

// WithGeminiHTTPClient supplies a custom HTTP client.
func WithGeminiHTTPClient(client *http.Client) GeminiOption {
	return func(c *geminiConfig) { c.httpClient = client }
}

// NewGeminiAdapter creates an adapter. The API key falls back to
// GEMINI_API_KEY, then GOOGLE_API_KEY.
func NewGeminiAdapter(opts ...GeminiOption) (*GeminiAdapter, error) {
	cfg := geminiConfig{baseURL: geminiDefaultBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if cfg.apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "gemini: no API key configured and GEMINI_API_KEY is not set",
		}}
	}

	api := newHTTPAPI("gemini", cfg.baseURL, cfg.httpClient, func(h http.Header) {
		h.Set("x-goog-api-key", cfg.apiKey)
	})
	return &GeminiAdapter{api: api}, nil
}

func (a *GeminiAdapter) Name() string { return "gemini" }

// Complete sends a blocking generateContent request.
func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/models/%s:generateContent", req.Model)
	raw, header, err := a.api.postJSON(ctx, path, body)
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

// Stream sends a streamGenerateContent request with SSE framing. Gemini
// repeats the full response envelope per chunk; there is no terminal frame,
// so the finalizer fires at end of stream.
func (a *GeminiAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/models/%s:streamGenerateContent?alt=sse", req.Model)
	rc, err := a.api.postStream(ctx, path, body)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer rc.Close()
		runStream(ctx, events, NewSSEReader(rc), newGeminiStream(req.Model))
	}()
	return events, nil
}

// ListModels queries the live /models endpoint. Gemini names models with a
// "models/" prefix that is stripped from the unified ids.
func (a *GeminiAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	raw, err := a.api.getJSON(ctx, "/models")
	if err != nil {
		return nil, err
	}
	data, _ := raw["models"].([]any)
	models := make([]ModelInfo, 0, len(data))
	for _, item := range data {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := strings.TrimPrefix(stringField(obj, "name"), "models/")
		if id == "" {
			continue
		}
		if known := GetModelInfo(id); known != nil {
			models = append(models, *known)
			continue
		}
		info := ModelInfo{
			ID:          id,
			Provider:    "gemini",
			DisplayName: stringField(obj, "displayName"),
		}
		if n := intFromAny(obj["inputTokenLimit"]); n > 0 {
			info.ContextWindow = n
		}
		if n := intFromAny(obj["outputTokenLimit"]); n > 0 {
			info.MaxOutput = &n
		}
		models = append(models, info)
	}
	return models, nil
}

// buildRequest translates a unified Request into the generateContent payload.
// System messages lift into systemInstruction and must be text-only. Tool
// results reference the called function by name, so the assistant's call ids
// are resolved to names while walking the history.
func (a *GeminiAdapter) buildRequest(req Request) (map[string]any, error) {
	if req.Model == "" {
		return nil, NewInvalidRequest("gemini", "model is required")
	}

	var systemParts []any
	var contents []any
	callNames := make(map[string]string)

	for i, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem, RoleDeveloper:
			if !msg.IsTextOnly() {
				return nil, NewInvalidRequest("gemini",
					fmt.Sprintf("message %d: system content must be text-only", i))
			}
			systemParts = append(systemParts, map[string]any{"text": msg.TextContent()})
		default:
			content, err := a.translateMessage(i, msg, callNames)
			if err != nil {
				return nil, err
			}
			contents = append(contents, content)
		}
	}

	body := map[string]any{"contents": contents}
	if len(systemParts) > 0 {
		body["systemInstruction"] = map[string]any{"parts": systemParts}
	}

	generation := map[string]any{}
	if req.Temperature != nil {
		generation["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		generation["topP"] = *req.TopP
	}
	if req.MaxTokens != nil {
		generation["maxOutputTokens"] = *req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		generation["stopSequences"] = req.StopSequences
	}
	if req.ReasoningEffort != "" {
		generation["thinkingConfig"] = map[string]any{"includeThoughts": true}
	}
	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "", "text":
		case "json":
			generation["responseMimeType"] = "application/json"
		case "json_schema":
			generation["responseMimeType"] = "application/json"
			generation["responseSchema"] = req.ResponseFormat.JSONSchema
		default:
			return nil, NewInvalidRequest("gemini",
				fmt.Sprintf("unknown response_format type %q", req.ResponseFormat.Type))
		}
	}
	if len(generation) > 0 {
		body["generationConfig"] = generation
	}

	if len(req.Tools) > 0 {
		declarations := make([]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			declarations = append(declarations, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			})
		}
		body["tools"] = []any{map[string]any{"functionDeclarations": declarations}}
	}
	if req.ToolChoice != nil {
		config, err := a.translateToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		body["toolConfig"] = map[string]any{"functionCallingConfig": config}
	}

	if opts, ok := req.ProviderOptions["gemini"]; ok {
		var extra map[string]any
		if err := json.Unmarshal(opts, &extra); err != nil {
			return nil, NewInvalidRequest("gemini", "provider_options.gemini is not a JSON object")
		}
		for k, v := range extra {
			body[k] = v
		}
	}
	return body, nil
}

func (a *GeminiAdapter) translateMessage(index int, msg Message, callNames map[string]string) (map[string]any, error) {
	role := "user"
	if msg.Role == RoleAssistant {
		role = "model"
	}

	var parts []any
	for _, part := range msg.Content {
		switch part.Kind {
		case ContentText:
			parts = append(parts, map[string]any{"text": part.Text})
		case ContentImage:
			block, err := geminiMediaPart(part.Image.URL, part.Image.Data, part.Image.MediaType)
			if err != nil {
				return nil, NewInvalidRequest("gemini", fmt.Sprintf("message %d: %v", index, err))
			}
			parts = append(parts, block)
		case ContentDocument:
			block, err := geminiMediaPart(part.Document.URL, part.Document.Data, part.Document.MediaType)
			if err != nil {
				return nil, NewInvalidRequest("gemini", fmt.Sprintf("message %d: %v", index, err))
			}
			parts = append(parts, block)
		case ContentAudio:
			block, err := geminiMediaPart(part.Audio.URL, part.Audio.Data, part.Audio.MediaType)
			if err != nil {
				return nil, NewInvalidRequest("gemini", fmt.Sprintf("message %d: %v", index, err))
			}
			parts = append(parts, block)
		case ContentToolCall:
			var args any = map[string]any{}
			if len(part.ToolCall.Arguments) > 0 {
				_ = json.Unmarshal(part.ToolCall.Arguments, &args)
			}
			callNames[part.ToolCall.ID] = part.ToolCall.Name
			parts = append(parts, map[string]any{
				"functionCall": map[string]any{"name": part.ToolCall.Name, "args": args},
			})
		case ContentToolResult:
			name, ok := callNames[part.ToolResult.ToolCallID]
			if !ok {
				return nil, NewInvalidRequest("gemini",
					fmt.Sprintf("message %d: tool result %q does not match any prior call",
						index, part.ToolResult.ToolCallID))
			}
			parts = append(parts, map[string]any{
				"functionResponse": map[string]any{
					"name":     name,
					"response": map[string]any{"output": rawToResultString(part.ToolResult.Content)},
				},
			})
		case ContentThinking:
			parts = append(parts, map[string]any{"text": part.Thinking.Text, "thought": true})
		default:
			return nil, NewInvalidRequest("gemini",
				fmt.Sprintf("message %d: content kind %q is not supported", index, part.Kind))
		}
	}
	return map[string]any{"role": role, "parts": parts}, nil
}

func geminiMediaPart(url string, data []byte, mediaType string) (map[string]any, error) {
	switch {
	case url != "":
		return map[string]any{"fileData": map[string]any{"fileUri": url, "mimeType": mediaType}}, nil
	case len(data) > 0:
		return map[string]any{"inlineData": map[string]any{
			"mimeType": mediaType,
			"data":     dataURLPayload(data),
		}}, nil
	default:
		return nil, fmt.Errorf("media content has neither URL nor data")
	}
}

func (a *GeminiAdapter) translateToolChoice(choice *ToolChoice) (map[string]any, error) {
	switch choice.Mode {
	case "auto":
		return map[string]any{"mode": "AUTO"}, nil
	case "none":
		return map[string]any{"mode": "NONE"}, nil
	case "required":
		return map[string]any{"mode": "ANY"}, nil
	case "named":
		if choice.ToolName == "" {
			return nil, NewInvalidRequest("gemini", "tool_choice mode \"named\" requires a tool name")
		}
		return map[string]any{"mode": "ANY", "allowedFunctionNames": []string{choice.ToolName}}, nil
	default:
		return nil, NewInvalidRequest("gemini", fmt.Sprintf("unknown tool_choice mode %q", choice.Mode))
	}
}

// parseResponse translates a generateContent body into the unified Response.
// Function calls arrive without ids, so reply-correlation ids are generated.
func (a *GeminiAdapter) parseResponse(model string, raw map[string]any) (*Response, error) {
	resp := &Response{
		Provider: "gemini",
		Model:    model,
		Raw:      raw,
		Message:  Message{Role: RoleAssistant},
	}
	resp.ID = stringField(raw, "responseId")
	if m := stringField(raw, "modelVersion"); m != "" {
		resp.Model = m
	}

	finishRaw := ""
	candidates, _ := raw["candidates"].([]any)
	if len(candidates) > 0 {
		candidate, _ := candidates[0].(map[string]any)
		finishRaw = stringField(candidate, "finishReason")
		content := objectField(candidate, "content")
		cparts, _ := content["parts"].([]any)
		for _, p := range cparts {
			pobj, ok := p.(map[string]any)
			if !ok {
				continue
			}
			resp.Message.Content = append(resp.Message.Content, parseGeminiPart(pobj)...)
		}
	}

	if feedback := objectField(raw, "promptFeedback"); feedback != nil {
		if reason := stringField(feedback, "blockReason"); reason != "" {
			resp.Warnings = append(resp.Warnings, Warning{
				Message: "prompt blocked: " + reason,
				Code:    "prompt_blocked",
			})
			if finishRaw == "" {
				finishRaw = "SAFETY"
			}
		}
	}

	if usage, ok := raw["usageMetadata"].(map[string]any); ok {
		resp.Usage = ParseUsage(usage)
	}
	hasToolCalls := len(resp.ToolCalls()) > 0
	resp.FinishReason = NormalizeFinishReason(finishRaw, hasToolCalls)
	return resp, nil
}

func parseGeminiPart(pobj map[string]any) []ContentPart {
	if call := objectField(pobj, "functionCall"); call != nil {
		args, _ := json.Marshal(call["args"])
		id := "call_" + newCallSuffix()
		return []ContentPart{ToolCallPart(id, stringField(call, "name"), args)}
	}
	if text, ok := pobj["text"].(string); ok {
		if thought, _ := pobj["thought"].(bool); thought {
			return []ContentPart{ThinkingPart(text, "")}
		}
		return []ContentPart{TextPart(text)}
	}
	return nil
}
