// tandem is an interactive agent REPL. It connects an OpenAI-compatible
// chat completions endpoint (or any gollm-supported provider) to a tool
// loop with web search, page crawling, and stream-through reasoning,
// and renders the event stream with simple ANSI coloring.
//
// Credentials come from the environment: OPENROUTER_API_KEY (required),
// OPENROUTER_MODEL and OPENROUTER_BASE_URL (defaults for --model and
// --base-url), and EXA_API_KEY for the web_search tool.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tandem-agent/tandem/agentloop"
	"github.com/tandem-agent/tandem/llmstream"
	"github.com/tandem-agent/tandem/tools"
)

const (
	colorGreen = "\033[92m"
	colorBlue  = "\033[94m"
	colorRed   = "\033[91m"
	colorReset = "\033[0m"
)

// fileConfig mirrors the command-line flags for use in a YAML config
// file. Flags set explicitly on the command line win.
type fileConfig struct {
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	Provider      string `yaml:"provider"`
	EnforceFinal  *bool  `yaml:"enforce_final"`
	MaxIterations int    `yaml:"max_iterations"`
	TokenBudget   int    `yaml:"token_budget"`
	SearchText    *bool  `yaml:"include_search_text"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		model         string
		baseURL       string
		provider      string
		configPath    string
		enforceFinal  bool
		maxIterations int
		tokenBudget   int
		searchText    bool
		verbose       bool
	)

	flags := pflag.NewFlagSet("tandem", pflag.ContinueOnError)
	flags.StringVar(&model, "model", os.Getenv("OPENROUTER_MODEL"), "model identifier")
	flags.StringVar(&baseURL, "base-url", os.Getenv("OPENROUTER_BASE_URL"), "OpenAI-compatible API base URL")
	flags.StringVar(&provider, "provider", "", "use a gollm provider instead of the HTTP client (e.g. openai, anthropic)")
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.BoolVar(&enforceFinal, "enforce-final", false, "require the final_output tool to conclude each turn")
	flags.IntVar(&maxIterations, "max-iterations", 20, "maximum model calls per turn")
	flags.IntVar(&tokenBudget, "token-budget", agentloop.DefaultTokenBudget, "conversation token budget")
	flags.BoolVar(&searchText, "search-text", false, "include page text in web search results")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if !flags.Changed("model") && cfg.Model != "" {
			model = cfg.Model
		}
		if !flags.Changed("base-url") && cfg.BaseURL != "" {
			baseURL = cfg.BaseURL
		}
		if !flags.Changed("provider") && cfg.Provider != "" {
			provider = cfg.Provider
		}
		if !flags.Changed("enforce-final") && cfg.EnforceFinal != nil {
			enforceFinal = *cfg.EnforceFinal
		}
		if !flags.Changed("max-iterations") && cfg.MaxIterations > 0 {
			maxIterations = cfg.MaxIterations
		}
		if !flags.Changed("token-budget") && cfg.TokenBudget > 0 {
			tokenBudget = cfg.TokenBudget
		}
		if !flags.Changed("search-text") && cfg.SearchText != nil {
			searchText = *cfg.SearchText
		}
	}

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY environment variable not set")
	}
	if model == "" {
		return fmt.Errorf("no model: set --model or OPENROUTER_MODEL")
	}

	logger := zap.NewNop()
	if verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer logger.Sync()
	}

	streamer, err := buildStreamer(provider, model, baseURL, apiKey, logger)
	if err != nil {
		return err
	}

	toolSet := []agentloop.Tool{
		tools.NewThink(),
		tools.NewFinalOutput(),
	}
	if exaKey := os.Getenv("EXA_API_KEY"); exaKey != "" {
		toolSet = append(toolSet,
			tools.NewSearch(tools.SearchConfig{
				APIKey:      exaKey,
				IncludeText: searchText,
				Logger:      logger,
			}),
			tools.NewCrawl(tools.CrawlConfig{Logger: logger}),
		)
	} else {
		fmt.Fprintln(os.Stderr, "warning: EXA_API_KEY not set, web_search and crawl disabled")
	}
	registry := agentloop.NewRegistry(toolSet...)

	agent := agentloop.NewAgent(streamer, model, registry,
		agentloop.PromptConfig{
			AdditionalContext:          "Current system time: " + time.Now().Format("2006-01-02 15:04:05"),
			AddThinkInstructions:       true,
			AddFinalOutputInstructions: enforceFinal,
		},
		agentloop.WithAgentLogger(logger),
		agentloop.WithContextManager(agentloop.NewBudgetContextManager(tokenBudget, nil, logger)),
	)
	runner := agentloop.NewRunner(agent, agentloop.RunnerConfig{
		EnforceFinal:  enforceFinal,
		MaxIterations: maxIterations,
	}, agentloop.WithRunnerLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Starting agent loop...")
	fmt.Println("Type 'exit' to end the conversation")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Print("\nUser: ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			return nil
		}

		fmt.Print("\nAssistant: ")
		if err := renderTurn(ctx, runner, input); err != nil {
			if ctx.Err() != nil {
				fmt.Println()
				return nil
			}
			fmt.Printf("\n%sError: %v%s\n", colorRed, err, colorReset)
		}
	}
}

// renderTurn runs one turn and prints events as they arrive. Response
// text streams inline; tool traffic is colored and set off on its own
// lines.
func renderTurn(ctx context.Context, runner *agentloop.Runner, input string) error {
	for ev := range runner.Run(ctx, input) {
		switch ev.Type {
		case agentloop.EventResponse:
			fmt.Print(ev.Content)
		case agentloop.EventToolCall:
			if ev.Call != nil {
				fmt.Printf("\n\n%sTool call: %s%s\n", colorGreen, ev.Call.Name, colorReset)
				if len(ev.Call.Params) > 0 {
					fmt.Printf("%sParameters: %v%s\n", colorGreen, ev.Call.Params, colorReset)
				}
			}
		case agentloop.EventToolResponse:
			fmt.Printf("\n\n%sTool response for %s:\n%s%s\n", colorBlue, ev.ToolName, ev.Content, colorReset)
		case agentloop.EventToolError:
			fmt.Printf("\n\n%sTool error (%s): %s%s\n", colorRed, ev.ToolName, ev.Content, colorReset)
		case agentloop.EventFinalAnswer:
			fmt.Printf("\n\n%s\n", ev.Content)
			if ev.Meta != nil {
				fmt.Printf("%s[%d tool calls, %d model calls, ~%d tokens]%s\n",
					colorBlue, ev.Meta.ToolCalls, ev.Meta.SubTurns, ev.Meta.EstimatedTokens, colorReset)
			}
		case agentloop.EventError:
			return ev.Err
		}
	}
	return nil
}

// buildStreamer selects the transport: the native OpenAI-compatible
// client by default, or a gollm adapter when --provider is set.
func buildStreamer(provider, model, baseURL, apiKey string, logger *zap.Logger) (llmstream.Streamer, error) {
	if provider != "" {
		return llmstream.NewGollmStreamer(provider, model, apiKey)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("no base URL: set --base-url or OPENROUTER_BASE_URL (or use --provider)")
	}
	return llmstream.NewClient(baseURL, apiKey, llmstream.WithLogger(logger)), nil
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
