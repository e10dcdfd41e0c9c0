package llm

import "strings"

// finishReasonTable is the fixed mapping from vendor finish strings to the
// normalized reasons. Lookup is case-insensitive.
var finishReasonTable = map[string]string{
	"stop":              FinishStop,
	"completed":         FinishStop,
	"end_turn":          FinishStop,
	"stop_sequence":     FinishStop,
	"length":            FinishLength,
	"max_tokens":        FinishLength,
	"incomplete":        FinishLength,
	"max_output_tokens": FinishLength,
	"tool_calls":        FinishToolCalls,
	"function_call":     FinishToolCalls,
	"tool_use":          FinishToolCalls,
	"content_filter":    FinishContentFilter,
	"safety":            FinishContentFilter,
	"error":             FinishError,
	"failed":            FinishError,
}

// NormalizeFinishReason maps a raw vendor finish string to the unified
// FinishReason. A present tool call always wins over the vendor string; an
// absent vendor string means a normal stop; anything unrecognized is "other".
func NormalizeFinishReason(raw string, hasToolCalls bool) FinishReason {
	if hasToolCalls {
		return FinishReason{Reason: FinishToolCalls, Raw: raw}
	}
	if raw == "" {
		return FinishReason{Reason: FinishStop}
	}
	if mapped, ok := finishReasonTable[strings.ToLower(raw)]; ok {
		return FinishReason{Reason: mapped, Raw: raw}
	}
	return FinishReason{Reason: FinishOther, Raw: raw}
}

// intFromAny converts a JSON-decoded numeric value to int.
func intFromAny(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

// ParseUsage extracts token counts from a vendor usage object. It accepts
// both the legacy (prompt_tokens/completion_tokens) and current
// (input_tokens/output_tokens) field names, plus Gemini's usageMetadata
// spelling, and pulls reasoning/cache counts from nested detail objects.
// TotalTokens is the vendor total when supplied, otherwise input+output.
func ParseUsage(raw map[string]any) Usage {
	if raw == nil {
		return Usage{}
	}

	u := Usage{Raw: raw}

	pick := func(keys ...string) (int, bool) {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				return intFromAny(v), true
			}
		}
		return 0, false
	}

	u.InputTokens, _ = pick("input_tokens", "prompt_tokens", "promptTokenCount")
	u.OutputTokens, _ = pick("output_tokens", "completion_tokens", "candidatesTokenCount")
	if total, ok := pick("total_tokens", "totalTokenCount"); ok && total > 0 {
		u.TotalTokens = total
	} else {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}

	detail := func(objKeys []string, key string) *int {
		for _, ok := range objKeys {
			if d, found := raw[ok].(map[string]any); found {
				if v, has := d[key]; has {
					n := intFromAny(v)
					return &n
				}
			}
		}
		return nil
	}

	u.ReasoningTokens = detail([]string{"output_tokens_details", "completion_tokens_details"}, "reasoning_tokens")
	u.CacheReadTokens = detail([]string{"input_tokens_details", "prompt_tokens_details"}, "cached_tokens")

	// Anthropic and Gemini report cache and reasoning counts at the top level.
	if u.CacheReadTokens == nil {
		if v, ok := pick("cache_read_input_tokens", "cachedContentTokenCount"); ok {
			u.CacheReadTokens = &v
		}
	}
	if v, ok := pick("cache_creation_input_tokens"); ok {
		u.CacheWriteTokens = &v
	}
	if u.ReasoningTokens == nil {
		if v, ok := pick("thoughtsTokenCount"); ok {
			u.ReasoningTokens = &v
		}
	}

	return u
}
