package llmstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client is a streaming client for OpenAI-chat-completions-shaped APIs
// (OpenAI, OpenRouter, and the many compatible gateways). It implements
// Streamer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryPolicy
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces the retry policy used for the initial request.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// WithLogger attaches a logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a streaming chat client for the given API endpoint.
// baseURL is the API root (for example "https://openrouter.ai/api/v1").
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 0}, // streams have no overall deadline
		retry:      DefaultRetryPolicy(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wire types for the chat-completions request and SSE payloads.

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model         string        `json:"model"`
	Messages      []wireMessage `json:"messages"`
	Stream        bool          `json:"stream"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type wireChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// encodeMessages converts history messages into the wire shape. Tool-role
// messages carry results of the XML tool protocol, which the model sees as
// ordinary conversation, so they are rewritten to user role wrapped in a
// tool_response block.
func encodeMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleTool {
			out = append(out, wireMessage{
				Role:    string(RoleUser),
				Content: "<tool_response>\n" + m.Content + "\n</tool_response>",
			})
			continue
		}
		out = append(out, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// StreamChat issues one streaming chat-completion call. Increments arrive
// on the returned channel in order; the channel is closed at end of stream
// or after a single error chunk. Cancelling ctx closes the network stream.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (<-chan Chunk, error) {
	if req.Model == "" {
		return nil, &ConfigurationError{ClientError: ClientError{Message: "model is required"}}
	}

	body := wireRequest{
		Model:       req.Model,
		Messages:    encodeMessages(req.Messages),
		Stream:      true,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	body.StreamOptions = &struct {
		IncludeUsage bool `json:"include_usage"`
	}{IncludeUsage: true}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ClientError{Message: "encode request", Cause: err}
	}

	resp, err := Retry(ctx, c.retry, func(ctx context.Context) (*http.Response, error) {
		return c.send(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk, 64)
	go c.readStream(ctx, resp, ch)
	return ch, nil
}

// send performs one POST to the chat-completions endpoint and classifies
// non-2xx responses into the typed error hierarchy.
func (c *Client) send(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &ClientError{Message: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &RequestTimeoutError{ClientError: ClientError{Message: "request cancelled", Cause: ctx.Err()}}
		}
		return nil, &NetworkError{ClientError: ClientError{Message: "request failed", Cause: err}}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, code := readAPIError(resp.Body)
		var retryAfter *float64
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.ParseFloat(ra, 64); perr == nil {
				retryAfter = &secs
			}
		}
		if msg == "" {
			msg = fmt.Sprintf("chat completion failed with status %d", resp.StatusCode)
		}
		return nil, ErrorFromStatusCode(resp.StatusCode, msg, code, retryAfter)
	}
	return resp, nil
}

// readStream decodes the SSE body line by line and forwards content deltas.
func (c *Client) readStream(ctx context.Context, resp *http.Response, ch chan<- Chunk) {
	defer resp.Body.Close()
	defer close(ch)

	// Close the body when ctx is cancelled so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			resp.Body.Close()
		case <-done:
		}
	}()

	start := time.Now()
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				ch <- Chunk{Err: &StreamError{ClientError: ClientError{Message: "stream read failed", Cause: err}}}
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			c.logger.Debug("stream complete", zap.Duration("elapsed", time.Since(start)))
			return
		}

		var wc wireChunk
		if err := json.Unmarshal([]byte(data), &wc); err != nil {
			ch <- Chunk{Err: &StreamError{ClientError: ClientError{Message: "malformed stream chunk", Cause: err}}}
			return
		}
		if wc.Usage != nil {
			select {
			case ch <- Chunk{Usage: wc.Usage}:
			case <-ctx.Done():
				return
			}
		}
		for _, choice := range wc.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			select {
			case ch <- Chunk{Text: choice.Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// readAPIError extracts the error message and code from an API error body.
func readAPIError(r io.Reader) (string, string) {
	data, err := io.ReadAll(io.LimitReader(r, 8192))
	if err != nil {
		return "", ""
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		code := body.Error.Code
		if code == "" {
			code = body.Error.Type
		}
		return body.Error.Message, code
	}
	return strings.TrimSpace(string(data)), ""
}
