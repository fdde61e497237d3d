package agentloop

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultTerminationTool is the registered name of the tool that concludes
// a turn and carries the final answer.
const DefaultTerminationTool = "final_output"

// correctiveInstruction is fed back when enforce-final mode is on and a
// stream ends without the termination tool being invoked.
const correctiveInstruction = `You did not conclude your response with the final_output tool. You MUST call the final_output tool with your complete answer in the result parameter to finish this response cycle.`

// RunnerConfig controls turn-level policy.
type RunnerConfig struct {
	// EnforceFinal requires the termination tool: plain-text response
	// events are suppressed from the external stream and streams ending
	// without termination are retried with a corrective instruction.
	EnforceFinal bool
	// MaxIterations bounds model calls per run. Default 20.
	MaxIterations int
	// MaxFinalizationRetries bounds enforce-final corrective retries.
	// Default 2.
	MaxFinalizationRetries int
	// TerminationTool overrides the termination tool name.
	TerminationTool string
	// EventBuffer sets the external event channel buffer. Default 256.
	EventBuffer int
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 20
	}
	if c.MaxFinalizationRetries <= 0 {
		c.MaxFinalizationRetries = 2
	}
	if c.TerminationTool == "" {
		c.TerminationTool = DefaultTerminationTool
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

// Runner drives an Agent across sub-turns: it executes parsed tool calls,
// feeds results back, intercepts the termination tool, and applies the
// iteration and enforce-final bounds. Turn state (tool call count, retry
// count) lives only for the duration of one Run.
type Runner struct {
	agent  *Agent
	cfg    RunnerConfig
	logger *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger attaches a logger. The default is a no-op logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner over the given Agent.
func NewRunner(agent *Agent, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	r := &Runner{agent: agent, cfg: cfg.withDefaults(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one turn: user input through tool calls to a final answer.
// The returned channel delivers the externally visible event stream and
// closes when the turn completes or fails. Abandoning the channel cancels
// the turn through ctx.
func (r *Runner) Run(ctx context.Context, input string) <-chan Event {
	out := make(chan Event, r.cfg.EventBuffer)
	go func() {
		defer close(out)
		r.run(ctx, input, out)
	}()
	return out
}

func (r *Runner) run(ctx context.Context, input string, out chan<- Event) {
	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		emit(Event{Type: EventError, Err: err})
	}

	termParam := r.terminationStreamParam()
	filter := newTagFilter(termParam)

	modelCalls := 0
	finalRetries := 0
	toolCalls := 0
	var finalText strings.Builder

	// startSubTurn guards the iteration bound around every model call.
	startSubTurn := func(f func() (<-chan Event, error)) (<-chan Event, bool) {
		if modelCalls >= r.cfg.MaxIterations {
			fail(&IterationLimitError{Limit: r.cfg.MaxIterations})
			return nil, false
		}
		modelCalls++
		events, err := f()
		if err != nil {
			fail(err)
			return nil, false
		}
		return events, true
	}

	finish := func(content string) {
		emit(Event{
			Type:    EventFinalAnswer,
			Content: strings.TrimSpace(content),
			Meta: &RunMeta{
				ToolCalls:       toolCalls,
				SubTurns:        modelCalls,
				EstimatedTokens: r.agent.EstimatedTokens(),
			},
		})
	}

	events, ok := startSubTurn(func() (<-chan Event, error) {
		return r.agent.RunStream(ctx, input)
	})
	if !ok {
		return
	}

	for {
		suspended := false

		for ev := range events {
			switch ev.Type {
			case EventResponse:
				// Plain model text. Internal-only under enforce-final.
				if !r.cfg.EnforceFinal {
					finalText.WriteString(ev.Content)
					if !emit(ev) {
						return
					}
				}

			case EventToolResponse, EventToolError:
				if !emit(ev) {
					return
				}

			case EventError:
				emit(ev)
				return

			case EventToolCall:
				if ev.Call == nil {
					// Stream-through increment.
					if ev.ToolName == r.cfg.TerminationTool {
						if text := filter.feed(ev.Content); text != "" {
							if !emit(Event{Type: EventResponse, Content: text, ToolName: ev.ToolName}) {
								return
							}
						}
					} else if !r.cfg.EnforceFinal {
						if !emit(ev) {
							return
						}
					}
					continue
				}

				// Completed call; generation is suspended.
				suspended = true
				toolCalls++
				if !emit(ev) {
					return
				}

				if ev.Call.Name == r.cfg.TerminationTool {
					r.concludeTurn(ev.Call, termParam, finish)
					return
				}

				result, isErr := r.executeTool(ctx, ev.Call)
				events, ok = startSubTurn(func() (<-chan Event, error) {
					return r.agent.ProvideToolResult(ctx, result, isErr)
				})
				if !ok {
					return
				}
			}
		}

		if suspended {
			// A new sub-turn channel replaced the drained one.
			continue
		}

		// Stream ended with no pending call: natural end of generation.
		if !r.cfg.EnforceFinal {
			finish(finalText.String())
			return
		}
		if finalRetries >= r.cfg.MaxFinalizationRetries {
			fail(&FinalizationRetriesError{Retries: finalRetries})
			return
		}
		finalRetries++
		r.logger.Debug("stream ended without termination tool, retrying",
			zap.Int("retry", finalRetries))
		events, ok = startSubTurn(func() (<-chan Event, error) {
			return r.agent.RunStream(ctx, correctiveInstruction)
		})
		if !ok {
			return
		}
	}
}

// concludeTurn records the termination call's outcome and emits the final
// answer. The result parameter is the final text; a missing parameter
// still concludes the turn with empty content rather than resuming.
func (r *Runner) concludeTurn(call *ParsedToolCall, termParam string, finish func(string)) {
	result := call.Params[termParam]
	if err := r.agent.ResolveToolCall(result, false); err != nil {
		r.logger.Warn("termination call could not be recorded", zap.Error(err))
	}
	finish(result)
}

// executeTool dispatches one parsed call through the registry. Failures
// are absorbed: the error text becomes the tool result fed back to the
// model.
func (r *Runner) executeTool(ctx context.Context, call *ParsedToolCall) (string, bool) {
	tool, ok := r.agent.Registry().Get(call.Name)
	if !ok {
		err := &UnknownToolError{Name: call.Name}
		r.logger.Debug("unknown tool referenced", zap.String("tool", call.Name))
		return err.Error(), true
	}

	if err := ValidateParams(tool, call.Params); err != nil {
		return err.Error() + "\n" + parameterHint(tool), true
	}

	result, err := tool.Execute(ctx, call.Params)
	if err != nil {
		r.logger.Debug("tool execution failed",
			zap.String("tool", call.Name), zap.Error(err))
		return "Tool error: " + err.Error() + "\n" + parameterHint(tool), true
	}
	r.logger.Debug("tool executed",
		zap.String("tool", call.Name), zap.Int("result_len", len(result)))
	return result, false
}

// parameterHint renders the tool's parameter specs so the model can retry
// with corrected input.
func parameterHint(t Tool) string {
	params := t.Parameters()
	if len(params) == 0 {
		return ""
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Please try again with the correct parameters for " + t.Name() + ":")
	for _, name := range names {
		p := params[name]
		req := "optional"
		if p.Required {
			req = "required"
		}
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		sb.WriteString("\n- " + name + ": " + p.Description + " (" + req + ", type: " + typ + ")")
	}
	return sb.String()
}

func (r *Runner) terminationStreamParam() string {
	if t, ok := r.agent.Registry().Get(r.cfg.TerminationTool); ok && t.Streaming() {
		return t.StreamParam()
	}
	return "result"
}

// tagFilter strips the stream parameter's XML tags from a stream-through
// delta sequence, holding a partial tag match across delta boundaries.
type tagFilter struct {
	tags []string
	buf  string
}

func newTagFilter(param string) *tagFilter {
	return &tagFilter{tags: []string{"<" + param + ">", "</" + param + ">"}}
}

func (f *tagFilter) feed(s string) string {
	data := f.buf + s
	f.buf = ""
	var out strings.Builder
	i := 0
	for i < len(data) {
		if data[i] != '<' {
			out.WriteByte(data[i])
			i++
			continue
		}
		rest := data[i:]
		matched := false
		partial := false
		for _, tag := range f.tags {
			if strings.HasPrefix(rest, tag) {
				i += len(tag)
				matched = true
				break
			}
			if len(rest) < len(tag) && strings.HasPrefix(tag, rest) {
				partial = true
			}
		}
		if matched {
			continue
		}
		if partial {
			f.buf = rest
			break
		}
		out.WriteByte(data[i])
		i++
	}
	return out.String()
}
