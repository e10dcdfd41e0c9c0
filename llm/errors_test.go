package llm

import (
	"errors"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	cases := []struct {
		status    int
		target    any
		retryable bool
	}{
		{400, &InvalidRequestError{}, false},
		{401, &AuthenticationError{}, false},
		{403, &AccessDeniedError{}, false},
		{404, &NotFoundError{}, false},
		{408, &RequestTimeoutError{}, true},
		{413, &ContextLengthError{}, false},
		{422, &InvalidRequestError{}, false},
		{429, &RateLimitError{}, true},
		{500, &ServerError{}, true},
		{502, &ServerError{}, true},
		{503, &ServerError{}, true},
		{504, &ServerError{}, true},
		{418, &ProviderError{}, true},
	}

	for _, tc := range cases {
		err := ErrorFromStatusCode(tc.status, "boom", "openai", "", nil, nil)
		matched := false
		switch tc.target.(type) {
		case *InvalidRequestError:
			var e *InvalidRequestError
			matched = errors.As(err, &e)
		case *AuthenticationError:
			var e *AuthenticationError
			matched = errors.As(err, &e)
		case *AccessDeniedError:
			var e *AccessDeniedError
			matched = errors.As(err, &e)
		case *NotFoundError:
			var e *NotFoundError
			matched = errors.As(err, &e)
		case *RequestTimeoutError:
			var e *RequestTimeoutError
			matched = errors.As(err, &e)
		case *ContextLengthError:
			var e *ContextLengthError
			matched = errors.As(err, &e)
		case *RateLimitError:
			var e *RateLimitError
			matched = errors.As(err, &e)
		case *ServerError:
			var e *ServerError
			matched = errors.As(err, &e)
		case *ProviderError:
			var e *ProviderError
			matched = errors.As(err, &e)
		}
		if !matched {
			t.Errorf("status %d: expected %T, got %T", tc.status, tc.target, err)
		}
		if got := IsRetryable(err); got != tc.retryable {
			t.Errorf("status %d: IsRetryable = %v, expected %v", tc.status, got, tc.retryable)
		}
	}
}

func TestErrorFromStatusCodeCarriesDetails(t *testing.T) {
	after := 1.5
	raw := map[string]any{"error": map[string]any{"type": "rate_limit_error"}}
	err := ErrorFromStatusCode(429, "slow down", "anthropic", "rate_limit_error", raw, &after)

	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %T", err)
	}
	if rle.Provider != "anthropic" || rle.StatusCode != 429 {
		t.Errorf("unexpected identity: %+v", rle.ProviderError)
	}
	if rle.ErrorCode != "rate_limit_error" {
		t.Errorf("error code dropped: %q", rle.ErrorCode)
	}
	if rle.RetryAfter == nil || *rle.RetryAfter != 1.5 {
		t.Errorf("retry-after dropped: %v", rle.RetryAfter)
	}
	if rle.Raw == nil {
		t.Error("raw payload dropped")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil must not be retryable")
	}
	if IsRetryable(&AbortError{SDKError{Message: "cancelled"}}) {
		t.Error("abort must not be retryable")
	}
	if IsRetryable(&PermissionDeniedError{Path: "/x"}) {
		t.Error("permission denied must not be retryable")
	}
	if !IsRetryable(&NetworkError{SDKError{Message: "refused"}}) {
		t.Error("network errors are retryable")
	}
	if !IsRetryable(&StreamError{SDKError: SDKError{Message: "bad frame"}}) {
		t.Error("stream errors are retryable")
	}
	if !IsRetryable(errors.New("mystery")) {
		t.Error("unknown errors default to retryable")
	}
}

func TestPermissionDeniedErrorMessage(t *testing.T) {
	err := &PermissionDeniedError{Path: "secrets/key.pem"}
	if err.Error() != "permission denied: secrets/key.pem" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &SDKError{Message: "wrapper", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable via errors.Is")
	}
	if err.Error() != "wrapper: root cause" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
