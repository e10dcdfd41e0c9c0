package llm

import "fmt"

// SDKError is the base error type for all unified protocol errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error { return e.Cause }

// ProviderError represents an error returned by a provider's API. Raw holds
// the untranslated vendor payload.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
	Raw        map[string]any
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// InvalidRequestError is produced by local validation before anything is sent
// to the vendor. Never retryable.
type InvalidRequestError struct{ ProviderError }

// ServerError is a remote vendor failure; retryable unless the vendor marks
// it otherwise.
type ServerError struct{ ProviderError }

// AuthenticationError, AccessDeniedError, NotFoundError, RateLimitError,
// ContentFilterError and ContextLengthError refine the vendor taxonomy.
type (
	AuthenticationError struct{ ProviderError }
	AccessDeniedError   struct{ ProviderError }
	NotFoundError       struct{ ProviderError }
	RateLimitError      struct{ ProviderError }
	ContentFilterError  struct{ ProviderError }
	ContextLengthError  struct{ ProviderError }
)

// StreamError indicates malformed framing or JSON mid-stream.
type StreamError struct {
	SDKError
	Provider string
	Raw      string
}

// ConfigurationError indicates missing or invalid adapter setup.
type ConfigurationError struct{ SDKError }

// RequestTimeoutError distinguishes an aborted in-flight network operation.
type RequestTimeoutError struct{ SDKError }

// AbortError is returned when a call is cancelled by its context.
type AbortError struct{ SDKError }

// NetworkError wraps transport-level failures before an HTTP status exists.
type NetworkError struct{ SDKError }

// PermissionDeniedError is raised by the scoped execution environment when a
// path resolves outside its scope. It carries only the originally requested
// path, never the resolved layout, and is never retried.
type PermissionDeniedError struct {
	Path string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Path)
}

// NewInvalidRequest creates a local-validation error for a provider.
func NewInvalidRequest(provider, message string) error {
	return &InvalidRequestError{ProviderError: ProviderError{
		SDKError: SDKError{Message: message},
		Provider: provider,
	}}
}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, raw map[string]any, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Raw:        raw,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		// Unknown statuses default to retryable.
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable reports whether the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ProviderError:
		return e.Retryable
	case *InvalidRequestError, *AuthenticationError, *AccessDeniedError,
		*NotFoundError, *ContextLengthError, *ContentFilterError,
		*ConfigurationError, *PermissionDeniedError, *AbortError:
		return false
	case *ServerError:
		return e.Retryable || e.StatusCode >= 500
	case *RateLimitError, *NetworkError, *StreamError, *RequestTimeoutError:
		return true
	default:
		// Unknown errors default to retryable.
		return true
	}
}
