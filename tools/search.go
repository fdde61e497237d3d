package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tandem-agent/tandem/agentloop"
	"github.com/tandem-agent/tandem/llmstream"
)

const defaultSearchBaseURL = "https://api.exa.ai"

const resultSeparator = "\n==============================================================================\n"

// SearchConfig configures the web search tool.
type SearchConfig struct {
	// APIKey authenticates against the search API.
	APIKey string
	// BaseURL overrides the API endpoint. Default is the Exa API.
	BaseURL string
	// NumResults bounds results per query. Default 10.
	NumResults int
	// IncludeText requests page text alongside title and URL.
	IncludeText bool
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// Retry governs rate-limit handling. Zero value gets a 1s-base
	// policy with five retries.
	Retry llmstream.RetryPolicy
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Search performs real-time web searches over an Exa-compatible HTTP
// JSON API. Rate-limited requests (429) are retried with backoff.
type Search struct {
	cfg SearchConfig
}

// NewSearch creates the web_search tool.
func NewSearch(cfg SearchConfig) *Search {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSearchBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.NumResults <= 0 {
		cfg.NumResults = 10
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BaseDelay == 0 {
		cfg.Retry = llmstream.RetryPolicy{
			MaxRetries:        5,
			BaseDelay:         1.0,
			MaxDelay:          30.0,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Search{cfg: cfg}
}

func (s *Search) Name() string { return "web_search" }

func (s *Search) Description() string {
	return "Search the web - performs real-time web searches and returns the most relevant results. Supports domain and publication-date filters."
}

func (s *Search) Parameters() map[string]agentloop.ParamSpec {
	return map[string]agentloop.ParamSpec{
		"query": {Description: "Search query", Type: "string", Required: true},
		"include_domains": {
			Description: "List of comma-separated domains to include in the search.",
			Type:        "List[string]",
		},
		"exclude_domains": {
			Description: "List of comma-separated domains to exclude from the search.",
			Type:        "List[string]",
		},
		"start_published_date": {
			Description: "Start publication date in ISO format (like 2025-04-08T04:00:00.000Z). Results will only include links with a published date after this date.",
			Type:        "string",
		},
		"end_published_date": {
			Description: "End publication date in ISO format (like 2025-04-08T04:00:00.000Z). Results will only include links with a published date before this date.",
			Type:        "string",
		},
	}
}

func (s *Search) Streaming() bool     { return false }
func (s *Search) StreamParam() string { return "" }

type searchRequest struct {
	Query          string          `json:"query"`
	NumResults     int             `json:"numResults"`
	IncludeDomains []string        `json:"includeDomains,omitempty"`
	ExcludeDomains []string        `json:"excludeDomains,omitempty"`
	StartDate      string          `json:"startPublishedDate,omitempty"`
	EndDate        string          `json:"endPublishedDate,omitempty"`
	Contents       *searchContents `json:"contents,omitempty"`
}

type searchContents struct {
	Text bool `json:"text"`
}

type searchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

func (s *Search) Execute(ctx context.Context, params map[string]string) (string, error) {
	req := searchRequest{
		Query:          params["query"],
		NumResults:     s.cfg.NumResults,
		IncludeDomains: agentloop.CoerceStringList(params["include_domains"]),
		ExcludeDomains: agentloop.CoerceStringList(params["exclude_domains"]),
		StartDate:      params["start_published_date"],
		EndDate:        params["end_published_date"],
	}
	if s.cfg.IncludeText {
		req.Contents = &searchContents{Text: true}
	}

	results, err := llmstream.Retry(ctx, s.cfg.Retry, func(ctx context.Context) ([]searchResult, error) {
		return s.search(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		return "No results found.", nil
	}

	entries := make([]string, 0, len(results))
	for _, r := range results {
		entry := "- " + r.Title + "\n  URL: " + r.URL
		if s.cfg.IncludeText && r.Text != "" {
			entry += "\n  Body: " + r.Text
		}
		entries = append(entries, entry)
	}
	return "Search results:" + resultSeparator + strings.Join(entries, resultSeparator), nil
}

func (s *Search) search(ctx context.Context, req searchRequest) ([]searchResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		httpReq.Header.Set("x-api-key", s.cfg.APIKey)
	}

	resp, err := s.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		s.cfg.Logger.Debug("search rate limited, will retry")
		return nil, llmstream.ErrorFromStatusCode(resp.StatusCode, "search rate limit exceeded", "", retryAfterHint(resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parsed.Results, nil
}

// retryAfterHint extracts a Retry-After header as a backoff hint in
// seconds, nil when absent or unparseable.
func retryAfterHint(resp *http.Response) *float64 {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return nil
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds < 0 {
		return nil
	}
	return &seconds
}
