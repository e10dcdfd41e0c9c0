package llm

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
)

// newCallSuffix returns a short unique suffix for generated call ids.
func newCallSuffix() string {
	return uuid.New().String()[:8]
}

// dataURL encodes raw bytes as a base64 data URL.
func dataURL(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// dataURLPayload encodes raw bytes as bare base64, no data URL prefix.
func dataURLPayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// rawToResultString renders tool result content for vendors that take a plain
// string. JSON strings are unquoted; everything else passes through verbatim.
func rawToResultString(content json.RawMessage) string {
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	return string(content)
}

// marshalGeminiArgs encodes a decoded args object, defaulting to an empty
// object when absent.
func marshalGeminiArgs(args any) (json.RawMessage, error) {
	if args == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(args)
}

// stringField reads a string out of a decoded JSON object, tolerating
// missing keys and wrong types.
func stringField(obj map[string]any, key string) string {
	v, _ := obj[key].(string)
	return v
}

// objectField reads a nested object out of a decoded JSON object.
func objectField(obj map[string]any, key string) map[string]any {
	v, _ := obj[key].(map[string]any)
	return v
}
