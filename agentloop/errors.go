package agentloop

import "fmt"

// ParseError reports a malformed or unterminated tool block at the end of a
// model stream. It fails the turn; the partial block is preserved for
// inspection.
type ParseError struct {
	Message string
	Partial string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.Message)
}

// UnknownToolError reports a parsed call referencing a tool that is not
// registered. It is absorbed as a tool_error event and fed back to the
// model; the turn continues.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ToolExecutionError reports a failure inside a tool's Execute, including
// parameter coercion failures. The error text becomes the tool result so
// the model can adapt; the turn continues.
type ToolExecutionError struct {
	Tool    string
	Message string
	Cause   error
}

func (e *ToolExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Message, e.Cause)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// TransportError reports a model API failure. It fails the turn; history
// already recorded is retained and the caller may start a new run.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("model transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IterationLimitError reports that a run reached its model-call bound
// without terminating.
type IterationLimitError struct {
	Limit int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("iteration limit reached: %d model calls without termination", e.Limit)
}

// FinalizationRetriesError reports that enforce-final mode exhausted its
// corrective retries without the model invoking the termination tool.
type FinalizationRetriesError struct {
	Retries int
}

func (e *FinalizationRetriesError) Error() string {
	return fmt.Sprintf("model failed to produce a final answer after %d retries", e.Retries)
}
