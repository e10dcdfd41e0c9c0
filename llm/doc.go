// Package llm normalizes the OpenAI Responses, Anthropic Messages, and
// Gemini generateContent APIs behind one message, request, and stream-event
// model.
//
// # Architecture
//
//   - Provider adapters: OpenAIAdapter, AnthropicAdapter, and GeminiAdapter
//     speak the native HTTP+SSE wire protocols; GollmAdapter covers
//     additional providers through the gollm library.
//   - Stream translation: every adapter's SSE machine feeds a shared
//     translator that emits one ordered, provider-independent event
//     sequence and assembles the final Response.
//   - Client: an explicit routing table over registered adapters with
//     retry for blocking calls. There is no module-level default client.
//
// # Quick Start
//
//	adapter, err := llm.NewAnthropicAdapter()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := llm.NewClient(llm.WithProvider("anthropic", adapter))
//
//	resp, err := client.Complete(ctx, llm.Request{
//	    Model:    "claude-opus-4-6",
//	    Messages: []llm.Message{llm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// # Streaming
//
//	events, err := client.Stream(ctx, req)
//	for event := range events {
//	    switch event.Type {
//	    case llm.TextDelta:
//	        fmt.Print(event.Delta)
//	    case llm.StreamFinish:
//	        resp = event.Response
//	    }
//	}
//
// Every stream emits exactly one StreamStart, ordered deltas, and exactly
// one terminal finish or error event. The finish event carries the complete
// assembled Response, so stream consumers never need a separate Complete
// call.
//
// # Errors
//
// Provider failures map to a typed hierarchy (AuthenticationError,
// RateLimitError, ServerError, ContextLengthError, and so on) with
// IsRetryable reporting whether a retry can help.
package llm
