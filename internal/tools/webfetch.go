package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/cartpilot/cartpilot/internal/agent/core"
)

// NewWebFetchTool builds the page-reading tool: headless render plus
// readability extraction, char-capped.
func NewWebFetchTool() *Tool {
	return &Tool{
		Name:        core.ToolWebFetch,
		Description: "Read a web page and return its title and extracted text. Use for product pages and reviews, never for cart or checkout pages.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "page URL to read"},
			},
			"required": []string{"url"},
		},
		Validate: func(args map[string]any) error {
			rawURL := stringArg(args, "url")
			if rawURL == "" {
				return fmt.Errorf("url is required")
			}
			u, err := url.Parse(rawURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return fmt.Errorf("url must be an absolute http(s) URL")
			}
			return nil
		},
		Execute: executeWebFetch,
	}
}

func executeWebFetch(ctx context.Context, args map[string]any, rc *RunContext) core.ToolResult {
	cfg := rc.Config.Tools.WebFetch
	pageURL := stringArg(args, "url")

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	html, err := fetchHTML(fetchCtx, pageURL)
	if err != nil {
		return core.Failuref("fetch", "failed to load %s: %v", pageURL, err)
	}

	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(pageURL))
	if err != nil {
		return core.Failuref("extract", "failed to extract content from %s: %v", pageURL, err)
	}

	text := capText(strings.TrimSpace(article.TextContent), cfg.MaxChars)

	return core.Success(map[string]any{
		"url":   pageURL,
		"title": strings.TrimSpace(article.Title),
		"text":  text,
	})
}

func fetchHTML(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("Cartpilot/1.0"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

// capText truncates text to at most max bytes without splitting a
// multi-byte UTF-8 sequence.
func capText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
