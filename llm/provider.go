package llm

import "context"

// ProviderAdapter is the interface every provider backend implements.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of ordered stream events.
	// The channel is closed after the terminal Finish or error event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)

	// ListModels returns the models the provider currently serves.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// Initializer is implemented by adapters that need startup validation.
type Initializer interface {
	Initialize() error
}
