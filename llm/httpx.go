package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// httpAPI is the shared HTTP plumbing for the native wire adapters. Each
// adapter supplies its base URL and header decoration; error payloads are
// translated into the unified taxonomy exactly once, here.
type httpAPI struct {
	provider string
	baseURL  string
	client   *http.Client
	headers  func(h http.Header)
}

func newHTTPAPI(provider, baseURL string, client *http.Client, headers func(h http.Header)) *httpAPI {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &httpAPI{provider: provider, baseURL: baseURL, client: client, headers: headers}
}

func (a *httpAPI) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, NewInvalidRequest(a.provider, fmt.Sprintf("cannot encode request body: %v", err))
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, NewInvalidRequest(a.provider, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.headers != nil {
		a.headers(req.Header)
	}
	return req, nil
}

// do executes the request and returns the raw response. Transport failures
// are classified by cause: deadline, cancellation, or network.
func (a *httpAPI) do(req *http.Request) (*http.Response, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, &RequestTimeoutError{SDKError: SDKError{Message: "request timed out", Cause: err}}
		case errors.Is(err, context.Canceled):
			return nil, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
		default:
			return nil, &NetworkError{SDKError: SDKError{Message: "request failed", Cause: err}}
		}
	}
	return resp, nil
}

// postJSON sends a JSON body and decodes a JSON object response.
func (a *httpAPI) postJSON(ctx context.Context, path string, body any) (map[string]any, http.Header, error) {
	req, err := a.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, nil, err
	}
	resp, err := a.do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &NetworkError{SDKError: SDKError{Message: "reading response failed", Cause: err}}
	}
	if resp.StatusCode >= 400 {
		return nil, nil, a.translateErrorBody(resp.StatusCode, payload, resp.Header)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, nil, &ServerError{ProviderError: ProviderError{
			SDKError:   SDKError{Message: "invalid JSON in response body", Cause: err},
			Provider:   a.provider,
			StatusCode: resp.StatusCode,
			Retryable:  true,
		}}
	}
	return decoded, resp.Header, nil
}

// postStream sends a JSON body and returns the response body for SSE
// consumption. Error statuses are drained and translated before returning.
func (a *httpAPI) postStream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	req, err := a.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := a.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, a.translateErrorBody(resp.StatusCode, payload, resp.Header)
	}
	return resp.Body, nil
}

// getJSON fetches and decodes a JSON object.
func (a *httpAPI) getJSON(ctx context.Context, path string) (map[string]any, error) {
	req, err := a.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "reading response failed", Cause: err}}
	}
	if resp.StatusCode >= 400 {
		return nil, a.translateErrorBody(resp.StatusCode, payload, resp.Header)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, &ServerError{ProviderError: ProviderError{
			SDKError:   SDKError{Message: "invalid JSON in response body", Cause: err},
			Provider:   a.provider,
			StatusCode: resp.StatusCode,
			Retryable:  true,
		}}
	}
	return decoded, nil
}

// translateErrorBody converts a vendor error response into the unified
// taxonomy. It understands the {"error": {...}} envelope all three native
// vendors use, falling back to the raw body text.
func (a *httpAPI) translateErrorBody(status int, body []byte, header http.Header) error {
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	message := http.StatusText(status)
	code := ""
	if errObj, ok := raw["error"].(map[string]any); ok {
		if m, ok := errObj["message"].(string); ok && m != "" {
			message = m
		}
		for _, key := range []string{"code", "type", "status"} {
			if c, ok := errObj[key].(string); ok && c != "" {
				code = c
				break
			}
		}
	} else if len(body) > 0 && len(body) < 512 {
		message = string(body)
	}

	var retryAfter *float64
	if ra := header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil {
			retryAfter = &secs
		}
	}

	return ErrorFromStatusCode(status, message, a.provider, code, raw, retryAfter)
}

// classifyEmbeddedError translates an error payload embedded in an otherwise
// well-formed stream frame. Used by the streaming translators.
func classifyEmbeddedError(provider string, errObj map[string]any) error {
	message := "provider reported a stream error"
	code := ""
	if m, ok := errObj["message"].(string); ok && m != "" {
		message = m
	}
	for _, key := range []string{"code", "type", "status"} {
		if c, ok := errObj[key].(string); ok && c != "" {
			code = c
			break
		}
	}
	return &ServerError{ProviderError: ProviderError{
		SDKError:  SDKError{Message: message},
		Provider:  provider,
		ErrorCode: code,
		Raw:       errObj,
		Retryable: true,
	}}
}

// parseRateLimit extracts rate-limit headers. Both the OpenAI and Anthropic
// spellings are recognized; absent headers leave the field nil.
func parseRateLimit(h http.Header) *RateLimitInfo {
	info := &RateLimitInfo{}
	found := false

	readInt := func(keys ...string) *int {
		for _, k := range keys {
			if v := h.Get(k); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					found = true
					return &n
				}
			}
		}
		return nil
	}

	info.RequestsRemaining = readInt("x-ratelimit-remaining-requests", "anthropic-ratelimit-requests-remaining")
	info.RequestsLimit = readInt("x-ratelimit-limit-requests", "anthropic-ratelimit-requests-limit")
	info.TokensRemaining = readInt("x-ratelimit-remaining-tokens", "anthropic-ratelimit-tokens-remaining")
	info.TokensLimit = readInt("x-ratelimit-limit-tokens", "anthropic-ratelimit-tokens-limit")

	if !found {
		return nil
	}
	return info
}
