package tools

import (
	"context"

	"github.com/tandem-agent/tandem/agentloop"
)

// FinalOutput is the termination tool: invoking it concludes the
// current response cycle and its result parameter carries the final
// answer. The Runner intercepts this tool by name and never calls
// Execute during a normal turn; the method exists to satisfy the Tool
// interface and for direct use in tests.
type FinalOutput struct{}

// NewFinalOutput creates the final_output tool.
func NewFinalOutput() *FinalOutput { return &FinalOutput{} }

func (f *FinalOutput) Name() string { return agentloop.DefaultTerminationTool }

func (f *FinalOutput) Description() string {
	return "Use this tool only to conclude your current response cycle, after all other necessary actions (like thinking or using other tools) for this step are complete. Provide your complete final response or summary of work done for this step in the 'result' parameter. This is required even for simple conversational replies where no other tools were needed."
}

func (f *FinalOutput) Parameters() map[string]agentloop.ParamSpec {
	return map[string]agentloop.ParamSpec{
		"result": {Description: "The final result of the task", Type: "string", Required: true},
	}
}

func (f *FinalOutput) Streaming() bool     { return true }
func (f *FinalOutput) StreamParam() string { return "result" }

func (f *FinalOutput) Execute(_ context.Context, params map[string]string) (string, error) {
	return params["result"], nil
}
