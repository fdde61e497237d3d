// Package llmstream provides streaming chat clients for LLM providers
// behind a single small interface, Streamer.
//
// # Architecture
//
// The package has three layers:
//
//   - Types and errors: Message, ChatRequest, Chunk, and a typed error
//     hierarchy with ErrorFromStatusCode / IsRetryable classification
//   - Retry: a generic Retry helper with exponential backoff and jitter
//   - Clients: Client speaks the OpenAI chat-completions SSE protocol
//     directly; GollmStreamer wraps gollm (github.com/teilomillet/gollm)
//     for everything else
//
// # Quick Start
//
// Streaming from an OpenAI-compatible endpoint:
//
//	client := llmstream.NewClient("https://openrouter.ai/api/v1", os.Getenv("OPENROUTER_API_KEY"))
//	ch, err := client.StreamChat(ctx, llmstream.ChatRequest{
//	    Model: "openai/gpt-5.2",
//	    Messages: []llmstream.Message{
//	        llmstream.SystemMessage("You are a helpful assistant."),
//	        llmstream.UserMessage("Hello"),
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	for chunk := range ch {
//	    if chunk.Err != nil {
//	        return chunk.Err
//	    }
//	    fmt.Print(chunk.Text)
//	}
//
// # Tool Messages
//
// Messages with RoleTool carry tool results for the XML tool-call protocol.
// At the wire boundary they are rewritten to user-role messages wrapped in
// a <tool_response> block, since chat-completions tool messages require a
// native tool-call id this protocol does not use.
//
// # Retry
//
// StreamChat retries the initial request per the configured RetryPolicy.
// RateLimitError honors the server's Retry-After hint; errors that arrive
// mid-stream are delivered as a final Chunk with Err set and are not
// retried.
package llmstream
