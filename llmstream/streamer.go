package llmstream

import "context"

// Streamer is the model API boundary: one streaming chat-completion call.
// Implementations deliver assistant text as ordered increments on the
// returned channel and close it when generation ends. Cancelling ctx
// abandons the stream and releases the underlying network resources.
type Streamer interface {
	StreamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, error)
}
