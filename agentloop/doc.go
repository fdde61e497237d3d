// Package agentloop drives a single LLM-backed agent through a turn loop
// that interleaves free-text generation with structured tool invocation,
// exposing every intermediate step as a typed event stream.
//
// # Architecture
//
// Four components, layered leaves first:
//
//   - StreamParser: a single-pass incremental classifier that splits a
//     live model stream into plain text and XML tool-call blocks, deciding
//     per tool whether block content streams through or is withheld until
//     complete
//   - ContextManager: keeps the conversation history within a token
//     budget before each model call
//   - Agent: owns the conversation history, drives one model call at a
//     time through the parser, and suspends generation at tool-call
//     boundaries until the caller resumes with a result
//   - Runner: turn-level policy over the Agent — executes tool calls,
//     intercepts the termination tool, and applies the iteration bound and
//     enforce-final retry loop
//
// # Quick Start
//
//	client := llmstream.NewClient(baseURL, apiKey)
//	registry := agentloop.NewRegistry(tools.NewThink(), tools.NewFinalOutput())
//
//	agent := agentloop.NewAgent(client, "openai/gpt-5.2", registry, agentloop.PromptConfig{
//	    AddThinkInstructions:       true,
//	    AddFinalOutputInstructions: true,
//	})
//	runner := agentloop.NewRunner(agent, agentloop.RunnerConfig{EnforceFinal: true})
//
//	for ev := range runner.Run(ctx, "Summarize the latest Go release notes") {
//	    switch ev.Type {
//	    case agentloop.EventResponse:
//	        fmt.Print(ev.Content)
//	    case agentloop.EventFinalAnswer:
//	        fmt.Println("\n--- done:", ev.Meta.ToolCalls, "tool calls")
//	    case agentloop.EventError:
//	        log.Fatal(ev.Err)
//	    }
//	}
//
// # Tool-Call Wire Format
//
// Tools are invoked inside assistant text as XML blocks whose top-level
// tag equals a registered tool name:
//
//	<web_search>
//	<query>golang 1.24 release notes</query>
//	</web_search>
//
// Unregistered top-level tags are literal text, never errors. Parameter
// values are raw strings; the executing tool coerces and validates them.
//
// # Concurrency
//
// One logical thread of control per in-flight turn: generation, parsing,
// and tool execution are cooperatively sequenced. The Agent has no
// internal locking — the contract is single writer, single turn at a
// time. Abandoning an event channel cancels the turn through its context,
// which closes the underlying network stream.
package agentloop
