package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/tandem-agent/tandem/agentloop"
)

const (
	defaultMaxPageWords = 32000
	maxFetchBytes       = 4 << 20
	truncationSeparator = "\n.......\n"
)

// CrawlConfig configures the page crawl tool.
type CrawlConfig struct {
	// MaxWords bounds the extracted text; oversized pages keep the
	// first and last MaxWords/2 words. Default 32000.
	MaxWords int
	// UserAgent sent with requests.
	UserAgent string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Crawl fetches a URL and extracts readable text. HTML responses are
// parsed and stripped to visible text; other content types are returned
// as-is. Oversized pages are clamped to their head and tail so the
// model sees both the opening and the conclusion.
type Crawl struct {
	cfg CrawlConfig
}

// NewCrawl creates the crawl tool.
func NewCrawl(cfg CrawlConfig) *Crawl {
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = defaultMaxPageWords
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "tandem-agent/1.0"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Crawl{cfg: cfg}
}

func (c *Crawl) Name() string { return "crawl" }

func (c *Crawl) Description() string {
	return "Extract content from specific URLs - performs targeted crawling of web pages to retrieve their text content. Useful for reading articles or any web page when you have the exact URL."
}

func (c *Crawl) Parameters() map[string]agentloop.ParamSpec {
	return map[string]agentloop.ParamSpec{
		"url": {Description: "URL of the page to fetch", Type: "string", Required: true},
	}
}

func (c *Crawl) Streaming() bool     { return false }
func (c *Crawl) StreamParam() string { return "" }

func (c *Crawl) Execute(ctx context.Context, params map[string]string) (string, error) {
	target := params["url"]
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", target)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var text string
	if isHTMLContentType(resp.Header.Get("Content-Type")) {
		text = htmlToText(data)
	} else {
		text = string(data)
	}

	clamped, truncated := clampWords(text, c.cfg.MaxWords)
	if truncated {
		c.cfg.Logger.Debug("page clamped",
			zap.String("url", target),
			zap.Int("max_words", c.cfg.MaxWords))
	}
	return clamped, nil
}

// clampWords keeps the first and last limit/2 words of oversized text,
// joined by a truncation separator.
func clampWords(text string, limit int) (string, bool) {
	words := strings.Fields(text)
	if len(words) <= limit {
		return text, false
	}
	half := limit / 2
	head := strings.Join(words[:half], " ")
	tail := strings.Join(words[len(words)-half:], " ")
	return head + truncationSeparator + tail, true
}

func isHTMLContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "html")
}

// htmlToText parses an HTML document and returns its visible text with
// whitespace collapsed. Script, style, and noscript subtrees are
// skipped.
func htmlToText(data []byte) string {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return normalizeWhitespace(string(data))
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return normalizeWhitespace(sb.String())
}

func normalizeWhitespace(s string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				sb.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		sb.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(sb.String())
}
