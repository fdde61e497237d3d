package agentloop

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tandem-agent/tandem/llmstream"
)

// ErrPendingToolCall is returned when RunStream is invoked while a parsed
// tool call is still awaiting its result.
var ErrPendingToolCall = errors.New("agentloop: pending tool call must be resolved before a new model call")

// ErrNoPendingToolCall is returned when a tool result is provided but no
// call is suspended.
var ErrNoPendingToolCall = errors.New("agentloop: no pending tool call")

// Agent owns the conversation history and drives one model call at a
// time through a StreamParser, exposing a suspend/resume generation
// protocol keyed on tool-call boundaries.
//
// Concurrency contract: single writer, single turn at a time. The caller
// must fully consume a returned event channel and must not invoke another
// operation on the Agent for the same turn concurrently. There is no
// internal locking.
type Agent struct {
	id       string
	streamer llmstream.Streamer
	model    string
	registry *Registry
	ctxmgr   ContextManager
	logger   *zap.Logger

	eventBuffer int

	history []llmstream.Message
	pending *ParsedToolCall
	usage   llmstream.Usage
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithContextManager replaces the default budget-based context manager.
func WithContextManager(cm ContextManager) AgentOption {
	return func(a *Agent) { a.ctxmgr = cm }
}

// WithAgentLogger attaches a logger. The default is a no-op logger.
func WithAgentLogger(l *zap.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

// WithEventBuffer sets the per-sub-turn event channel buffer.
func WithEventBuffer(n int) AgentOption {
	return func(a *Agent) { a.eventBuffer = n }
}

// WithInitialMessages seeds conversation context after the system message.
func WithInitialMessages(msgs ...llmstream.Message) AgentOption {
	return func(a *Agent) { a.history = append(a.history, msgs...) }
}

// DefaultTokenBudget bounds the conversation context sent per model call.
const DefaultTokenBudget = 80000

// NewAgent creates an Agent for the given model and tool set. The system
// prompt is assembled once from cfg and the registry and pinned as the
// first history message.
func NewAgent(streamer llmstream.Streamer, model string, registry *Registry, cfg PromptConfig, opts ...AgentOption) *Agent {
	if registry == nil {
		registry = NewRegistry()
	}
	a := &Agent{
		id:          uuid.New().String(),
		streamer:    streamer,
		model:       model,
		registry:    registry,
		logger:      zap.NewNop(),
		eventBuffer: 256,
	}
	system := BuildSystemPrompt(cfg, registry.Tools())
	a.history = []llmstream.Message{llmstream.SystemMessage(system)}
	for _, opt := range opts {
		opt(a)
	}
	if a.ctxmgr == nil {
		a.ctxmgr = NewBudgetContextManager(DefaultTokenBudget, nil, a.logger)
	}
	return a
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() string { return a.id }

// History returns a copy of the conversation history.
func (a *Agent) History() []llmstream.Message {
	out := make([]llmstream.Message, len(a.history))
	copy(out, a.history)
	return out
}

// Pending returns the parsed tool call awaiting a result, if any.
func (a *Agent) Pending() *ParsedToolCall { return a.pending }

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *Registry { return a.registry }

// EstimatedTokens reports cumulative token consumption: provider-reported
// usage when available, otherwise an estimate over the history.
func (a *Agent) EstimatedTokens() int {
	if a.usage.TotalTokens > 0 {
		return a.usage.TotalTokens
	}
	return a.ctxmgr.EstimateTokens(a.history)
}

// RunStream appends input as a user message and starts one streaming
// model call (a sub-turn). The returned channel delivers events in causal
// order and closes when the sub-turn ends: either the stream finished, or
// generation suspended at a completed tool call. In the latter case the
// caller resumes via ProvideToolResult.
func (a *Agent) RunStream(ctx context.Context, input string) (<-chan Event, error) {
	if a.pending != nil {
		return nil, ErrPendingToolCall
	}
	a.history = append(a.history, llmstream.UserMessage(input))
	return a.subTurn(ctx, Event{})
}

// ProvideToolResult resolves the pending tool call and resumes generation
// with a new sub-turn whose context includes the result. The
// tool_response (or tool_error) event is the first event on the returned
// channel.
func (a *Agent) ProvideToolResult(ctx context.Context, result string, isError bool) (<-chan Event, error) {
	call := a.pending
	if call == nil {
		return nil, ErrNoPendingToolCall
	}
	lead := a.resolve(call, result, isError)
	return a.subTurn(ctx, lead)
}

// ResolveToolCall records the pending call's outcome without resuming
// generation. Used by callers that conclude the turn at this call (the
// termination tool) instead of feeding the result back to the model.
func (a *Agent) ResolveToolCall(result string, isError bool) error {
	call := a.pending
	if call == nil {
		return ErrNoPendingToolCall
	}
	a.resolve(call, result, isError)
	return nil
}

// resolve appends the tool-role message pairing the recorded call with
// its outcome and clears the suspension.
func (a *Agent) resolve(call *ParsedToolCall, result string, isError bool) Event {
	content := result
	kind := EventToolResponse
	if isError {
		kind = EventToolError
		content = "<tool_error>\n" + result + "\n</tool_error>"
	}
	a.history = append(a.history, llmstream.ToolMessage(content))
	a.pending = nil
	a.logger.Debug("tool call resolved",
		zap.String("tool", call.Name),
		zap.Bool("error", isError))
	return Event{Type: kind, Content: result, ToolName: call.Name}
}

// subTurn issues one streaming model call and classifies its output. lead
// is emitted first when non-zero.
func (a *Agent) subTurn(ctx context.Context, lead Event) (<-chan Event, error) {
	a.history = a.ctxmgr.Trim(a.history)

	subCtx, cancel := context.WithCancel(ctx)
	chunks, err := a.streamer.StreamChat(subCtx, llmstream.ChatRequest{
		Model:    a.model,
		Messages: a.history,
	})
	if err != nil {
		cancel()
		return nil, &TransportError{Cause: err}
	}

	events := make(chan Event, a.eventBuffer)
	go func() {
		defer close(events)
		defer cancel()

		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if lead.Type != "" {
			if !emit(lead) {
				return
			}
		}

		parser := NewStreamParser(a.registry.ParserSpecs())
		var full strings.Builder

		record := func() {
			if full.Len() > 0 {
				a.history = append(a.history, llmstream.AssistantMessage(full.String()))
			}
		}

		for chunk := range chunks {
			if chunk.Err != nil {
				record()
				emit(Event{Type: EventError, Err: &TransportError{Cause: chunk.Err}})
				return
			}
			if chunk.Usage != nil {
				a.usage = a.usage.Add(*chunk.Usage)
				continue
			}
			if chunk.Text == "" {
				continue
			}
			full.WriteString(chunk.Text)

			for _, frag := range parser.Feed(chunk.Text) {
				switch frag.Kind {
				case FragmentText:
					if !emit(Event{Type: EventResponse, Content: frag.Text}) {
						return
					}
				case FragmentToolDelta:
					if !emit(Event{Type: EventToolCall, Content: frag.Text, ToolName: frag.ToolName}) {
						return
					}
				case FragmentToolComplete:
					// Suspend: record the assistant message including the
					// tool block, hold the call, and end the sub-turn.
					// Anything the model generates after this block is
					// discarded.
					record()
					a.pending = frag.Call
					a.logger.Debug("generation suspended at tool call",
						zap.String("tool", frag.Call.Name))
					emit(Event{
						Type:     EventToolCall,
						Content:  frag.Call.Raw,
						ToolName: frag.Call.Name,
						Call:     frag.Call,
					})
					return
				}
			}
		}

		tail, err := parser.Finish()
		if err != nil {
			record()
			emit(Event{Type: EventError, Err: err})
			return
		}
		for _, frag := range tail {
			if !emit(Event{Type: EventResponse, Content: frag.Text}) {
				return
			}
		}
		record()
	}()

	return events, nil
}
