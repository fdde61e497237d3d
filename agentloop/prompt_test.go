package agentloop

import (
	"strings"
	"testing"
)

func TestBuildSystemPromptDefaults(t *testing.T) {
	prompt := BuildSystemPrompt(PromptConfig{}, nil)

	for _, section := range []string{"TOOL USE", "RULES", "OBJECTIVE"} {
		if !strings.Contains(prompt, section) {
			t.Errorf("default prompt missing %s section", section)
		}
	}
	if strings.Contains(prompt, "THINKING PROCESS") {
		t.Error("think section should be off by default")
	}
	if strings.Contains(prompt, "FINAL OUTPUT INSTRUCTIONS") {
		t.Error("final output section should be off by default")
	}
}

func TestBuildSystemPromptToolUsageBlocks(t *testing.T) {
	tools := []Tool{
		&testTool{
			name: "web_search",
			desc: "Search the web.",
			params: map[string]ParamSpec{
				"query":           {Description: "Search query", Required: true},
				"include_domains": {Description: "Domains to include"},
			},
		},
	}
	prompt := BuildSystemPrompt(PromptConfig{}, tools)

	if !strings.Contains(prompt, "## web_search") {
		t.Error("missing tool header")
	}
	if !strings.Contains(prompt, "- query: Search query (required)") {
		t.Error("missing required parameter line")
	}
	if !strings.Contains(prompt, "- include_domains: Domains to include\n") {
		t.Error("missing optional parameter line")
	}
	usage := "<web_search>\n<include_domains>include_domains here</include_domains>\n<query>query here</query>\n</web_search>"
	if !strings.Contains(prompt, usage) {
		t.Errorf("missing usage block:\n%s", prompt)
	}
}

func TestBuildSystemPromptToggles(t *testing.T) {
	prompt := BuildSystemPrompt(PromptConfig{
		AddThinkInstructions:       true,
		AddFinalOutputInstructions: true,
	}, nil)
	if !strings.Contains(prompt, "THINKING PROCESS") {
		t.Error("think section missing")
	}
	if !strings.Contains(prompt, "FINAL OUTPUT INSTRUCTIONS") {
		t.Error("final output section missing")
	}

	prompt = BuildSystemPrompt(PromptConfig{SkipToolInstructions: true}, nil)
	if strings.Contains(prompt, "TOOL USE") {
		t.Error("tool instructions should be omitted")
	}
}

func TestBuildSystemPromptCustomSections(t *testing.T) {
	prompt := BuildSystemPrompt(PromptConfig{
		Description:       "You are a research agent.",
		Rules:             "- Never fabricate citations.",
		AdditionalContext: "Current time: 2026-08-30",
	}, nil)

	if !strings.HasPrefix(prompt, "You are a research agent.") {
		t.Error("custom description should lead the prompt")
	}
	if !strings.Contains(prompt, "Never fabricate citations.") {
		t.Error("custom rule missing")
	}
	// Custom rules extend, not replace, the defaults.
	if !strings.Contains(prompt, "RULES") {
		t.Error("default rules missing")
	}
	if !strings.Contains(prompt, "ADDITIONAL CONTEXT\n\nCurrent time: 2026-08-30") {
		t.Error("additional context section missing")
	}

	prompt = BuildSystemPrompt(PromptConfig{
		Rules:            "only this rule",
		SkipDefaultRules: true,
	}, nil)
	if strings.Contains(prompt, "STRICTLY FORBIDDEN") {
		t.Error("default rules should be skipped")
	}
	if !strings.Contains(prompt, "only this rule") {
		t.Error("custom rule missing")
	}
}
