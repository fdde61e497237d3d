// Package tools provides concrete Tool implementations for the agent
// loop: the think and final_output stream-through tools, a web search
// tool backed by an Exa-compatible HTTP API, a page crawler with
// readable-text extraction, and small arithmetic tools used to exercise
// parameter coercion.
//
// All tools implement agentloop.Tool and are registered with an
// agentloop.Registry at construction time:
//
//	registry := agentloop.NewRegistry(
//		tools.NewThink(),
//		tools.NewFinalOutput(),
//		tools.NewSearch(tools.SearchConfig{APIKey: os.Getenv("EXA_API_KEY")}),
//		tools.NewCrawl(tools.CrawlConfig{}),
//	)
package tools
