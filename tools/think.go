package tools

import (
	"context"

	"github.com/tandem-agent/tandem/agentloop"
)

// Think is a stream-through reasoning tool. It obtains no new
// information and has no side effects; it exists so the model can emit
// intermediate reasoning that the host streams to the user as it is
// generated.
type Think struct{}

// NewThink creates the think tool.
func NewThink() *Think { return &Think{} }

func (t *Think) Name() string { return "think" }

func (t *Think) Description() string {
	return "Use the tool to think about something. It will not obtain new information or change anything, but just appends the thought to the log. Use it when complex reasoning or some working memory is needed."
}

func (t *Think) Parameters() map[string]agentloop.ParamSpec {
	return map[string]agentloop.ParamSpec{
		"thought": {Description: "A thought to think about.", Type: "string", Required: true},
	}
}

func (t *Think) Streaming() bool     { return true }
func (t *Think) StreamParam() string { return "thought" }

func (t *Think) Execute(_ context.Context, params map[string]string) (string, error) {
	return "Thought logged: " + params["thought"], nil
}
