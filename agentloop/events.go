package agentloop

// EventType identifies the kind of turn event.
type EventType string

const (
	// EventResponse carries an increment of surfaced assistant text.
	EventResponse EventType = "response"
	// EventToolCall carries either a stream-through content increment
	// (Call nil) or a complete parsed call (Call set).
	EventToolCall EventType = "tool_call"
	// EventToolResponse carries the result of a successful tool execution.
	EventToolResponse EventType = "tool_response"
	// EventToolError carries a tool failure or unknown-tool reference that
	// was absorbed into conversation context.
	EventToolError EventType = "tool_error"
	// EventFinalAnswer concludes a run with the final text and metadata.
	EventFinalAnswer EventType = "final_answer"
	// EventError terminates a run with a fatal error (parse, transport,
	// or policy limit).
	EventError EventType = "error"
)

// RunMeta summarizes a completed run. Attached to final_answer events.
type RunMeta struct {
	ToolCalls       int `json:"tool_calls"`
	SubTurns        int `json:"sub_turns"`
	EstimatedTokens int `json:"estimated_tokens"`
}

// Event is the wire contract between the turn loop and its caller. Events
// are delivered on a buffered channel in the exact causal order they were
// produced, never reordered or batched across tool boundaries; the channel
// closes when the producing phase completes.
type Event struct {
	Type     EventType       `json:"type"`
	Content  string          `json:"content,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Call     *ParsedToolCall `json:"call,omitempty"`
	Meta     *RunMeta        `json:"meta,omitempty"`
	Err      error           `json:"-"`
}
