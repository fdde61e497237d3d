package agentloop

import (
	"fmt"
	"sort"
	"strings"
)

// PromptConfig controls system prompt assembly. Zero value gives the full
// default prompt for the registered tools.
type PromptConfig struct {
	// Description replaces the default agent description when set.
	Description string
	// Rules replaces or extends the default rules section.
	Rules            string
	SkipDefaultRules bool
	// Objective replaces or extends the default objective section.
	Objective            string
	SkipDefaultObjective bool
	// AdditionalContext is appended as its own section (for example the
	// current time or environment details).
	AdditionalContext string
	// CustomInstructions are appended at the very end of the prompt.
	CustomInstructions string
	// SkipToolInstructions omits the tool-calling protocol and the
	// per-tool usage blocks.
	SkipToolInstructions bool
	// AddThinkInstructions includes guidance for the think tool.
	AddThinkInstructions bool
	// AddFinalOutputInstructions includes guidance for the termination
	// tool.
	AddFinalOutputInstructions bool
}

const defaultDescription = `You are a capable assistant that accomplishes tasks using the tools provided, working step by step until the task is complete.`

const toolCallingSection = `TOOL USE

You have access to a set of tools. You can use one tool per message, and will receive the result of that tool use in the next message. You use tools step-by-step to accomplish a given task, with each tool use informed by the result of the previous one.

# Tool Use Formatting

Tool use is formatted using XML-style tags. The tool name is the top-level tag, and each parameter is enclosed within its own set of tags:

<tool_name>
<parameter1_name>value1</parameter1_name>
<parameter2_name>value2</parameter2_name>
</tool_name>

For example, to search the web:

<web_search>
<query>your search query</query>
</web_search>

CRITICAL: emit the tool call directly in your response. DO NOT wrap tool calls in a markdown code block. Failure to follow this format will result in your tool call not being executed.

# Tool Use Guidelines

1. Choose the most appropriate tool based on the task and the tool descriptions provided.
2. If multiple actions are needed, use one tool at a time per message, with each tool use informed by the result of the previous one. Do not assume the outcome of any tool use.
3. After each tool use, the next message contains the result wrapped in <tool_response> tags, or an error wrapped in <tool_error> tags which you will need to address.
4. ALWAYS wait for the tool result before proceeding. Never assume success without seeing the result.`

const rulesSection = `RULES

- Do not ask for more information than necessary. Use the tools provided to accomplish the user's request efficiently and effectively. When you've completed your task, simply provide a final response without asking further questions.
- Your goal is to accomplish the user's task, not engage in a back and forth conversation. If you need more information, try to infer it from the context or use the available tools.
- Your answer must always be in the SAME language as the user prompt UNLESS the user asks otherwise.
- NEVER end your response with a question or request to engage in further conversation. Formulate the end of your result in a way that is final and does not require further input from the user.
- You are STRICTLY FORBIDDEN from starting your messages with "Great", "Certainly", "Okay", "Sure". Be direct, clear and technical in your messages.`

const objectiveSection = `OBJECTIVE

You accomplish a given task iteratively, breaking it down into clear steps and working through them methodically.

1. Analyze the user's task and set clear, achievable goals to accomplish it. Prioritize these goals in a logical order.
2. Work through these goals sequentially, utilizing available tools one at a time as necessary. Each goal should correspond to a distinct step in your problem-solving process.
3. The user may provide feedback, which you can use to make improvements and try again. But DO NOT continue in pointless back and forth conversations: don't end your responses with questions or offers for further assistance.`

const thinkSection = `THINKING PROCESS

Use the think tool (as a top-level XML tag) to assess information, plan your approach, and decide which other tools are needed for the task.

Before using any other tool, perform analysis using the think tool to outline your plan and decide the next steps:

<think>
<thought>First, I need to analyze the request to understand what is being asked. The [tool_name] tool seems appropriate. I need the [parameter_name] parameter, which I can infer from the context. I will now proceed with the tool call.</thought>
</think>

Use the think tool first to plan; after thinking, proceed with the next tool call in a subsequent message.`

const finalOutputSection = `FINAL OUTPUT INSTRUCTIONS

After completing all necessary actions for the user's request (including planning and any required uses of tools), you MUST conclude the response cycle by using the final_output tool.

Provide your complete response or summary of work done within the result parameter. This applies whether you completed a larger task or handled a simple conversational input. Use the final_output tool to:

1. Present the final result of your task to the user
2. Summarize the work completed
3. Provide any concluding remarks or next steps
4. Avoid leaving the conversation open-ended: make your response final and complete`

// BuildSystemPrompt composes the system prompt from the config and the
// registered tools.
func BuildSystemPrompt(cfg PromptConfig, tools []Tool) string {
	description := cfg.Description
	if description == "" {
		description = defaultDescription
	}

	var sections []string
	sections = append(sections, description)

	if !cfg.SkipToolInstructions {
		sections = append(sections, toolCallingSection)
		if s := buildToolsSection(tools); s != "" {
			sections = append(sections, s)
		}
	}

	if cfg.AddThinkInstructions {
		sections = append(sections, thinkSection)
	}

	if s := mergeSection(rulesSection, cfg.Rules, cfg.SkipDefaultRules); s != "" {
		sections = append(sections, s)
	}
	if s := mergeSection(objectiveSection, cfg.Objective, cfg.SkipDefaultObjective); s != "" {
		sections = append(sections, s)
	}

	if cfg.AdditionalContext != "" {
		sections = append(sections, "ADDITIONAL CONTEXT\n\n"+cfg.AdditionalContext)
	}

	if cfg.AddFinalOutputInstructions {
		sections = append(sections, finalOutputSection)
	}

	if cfg.CustomInstructions != "" {
		sections = append(sections, cfg.CustomInstructions)
	}

	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n\n====\n\n")
		}
		sb.WriteString(strings.TrimSpace(s))
	}
	sb.WriteString("\n")
	return sb.String()
}

// mergeSection combines a default section with custom text.
func mergeSection(def, custom string, skipDefault bool) string {
	switch {
	case skipDefault:
		return custom
	case custom == "":
		return def
	default:
		return def + "\n" + strings.TrimSpace(custom)
	}
}

// buildToolsSection renders the per-tool documentation and usage examples.
func buildToolsSection(tools []Tool) string {
	if len(tools) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("# Available Tools\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "\n## %s\n%s\n", t.Name(), t.Description())

		params := t.Parameters()
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)

		if len(names) > 0 {
			sb.WriteString("Parameters:\n")
			for _, name := range names {
				p := params[name]
				required := ""
				if p.Required {
					required = " (required)"
				}
				fmt.Fprintf(&sb, "- %s: %s%s\n", name, p.Description, required)
			}
		}

		sb.WriteString("Usage:\n")
		fmt.Fprintf(&sb, "<%s>\n", t.Name())
		for _, name := range names {
			fmt.Fprintf(&sb, "<%s>%s here</%s>\n", name, name, name)
		}
		fmt.Fprintf(&sb, "</%s>\n", t.Name())
	}
	return sb.String()
}
