package llmstream

import (
	"context"
	"io"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmStreamer adapts a gollm.LLM instance to the Streamer interface. It
// covers providers the raw HTTP Client does not speak natively (Anthropic,
// Gemini, Ollama and the rest of gollm's catalog).
type GollmStreamer struct {
	llm      gollm.LLM
	provider string
}

// NewGollmStreamer builds a streamer for the named gollm provider.
func NewGollmStreamer(provider, model, apiKey string, opts ...gollm.ConfigOption) (*GollmStreamer, error) {
	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxRetries(0), // retries are handled by the caller
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, opts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{ClientError: ClientError{Message: "create gollm client", Cause: err}}
	}
	return &GollmStreamer{llm: llm, provider: provider}, nil
}

// NewGollmStreamerFromLLM wraps an existing gollm.LLM instance.
func NewGollmStreamerFromLLM(provider string, llm gollm.LLM) *GollmStreamer {
	return &GollmStreamer{llm: llm, provider: provider}
}

// StreamChat implements Streamer. If the underlying provider cannot stream,
// the full response is generated and delivered as a single chunk.
func (g *GollmStreamer) StreamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	prompt := g.translateRequest(req)
	g.applyRequestOptions(req)

	ch := make(chan Chunk, 64)

	if !g.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			text, err := g.llm.Generate(ctx, prompt)
			if err != nil {
				ch <- Chunk{Err: g.translateError(err)}
				return
			}
			ch <- Chunk{Text: text}
		}()
		return ch, nil
	}

	stream, err := g.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, g.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				ch <- Chunk{Err: g.translateError(err)}
				return
			}
			if token == nil || token.Text == "" {
				continue
			}
			select {
			case ch <- Chunk{Text: token.Text}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// translateRequest flattens the message history into a gollm prompt. Tool
// messages are folded into the user turn the same way encodeMessages does
// for the HTTP client.
func (g *GollmStreamer) translateRequest(req ChatRequest) *gollm.Prompt {
	var systemPrompt string
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.Content + "\n"
		case RoleUser:
			userParts = append(userParts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				userParts = append(userParts, "[Assistant]: "+msg.Content)
			}
		case RoleTool:
			userParts = append(userParts, "<tool_response>\n"+msg.Content+"\n</tool_response>")
		}
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

func (g *GollmStreamer) applyRequestOptions(req ChatRequest) {
	if req.Model != "" {
		g.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		g.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		g.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// translateError classifies a gollm error into the typed hierarchy based on
// message content, since gollm does not expose status codes directly.
func (g *GollmStreamer) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		return ErrorFromStatusCode(401, msg, "", nil)
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return ErrorFromStatusCode(403, msg, "", nil)
	case strings.Contains(msgLower, "404") || strings.Contains(msgLower, "not found"):
		return ErrorFromStatusCode(404, msg, "", nil)
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return ErrorFromStatusCode(429, msg, "", nil)
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return ErrorFromStatusCode(413, msg, "", nil)
	case strings.Contains(msgLower, "timeout") || strings.Contains(msgLower, "deadline"):
		return &RequestTimeoutError{ClientError: ClientError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "connection") || strings.Contains(msgLower, "network"):
		return &NetworkError{ClientError: ClientError{Message: msg, Cause: err}}
	default:
		return &ClientError{Message: msg, Cause: err}
	}
}
