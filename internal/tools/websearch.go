package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cartpilot/cartpilot/internal/agent/core"
)

// SearchHit is one web search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// webSearcher abstracts the search backend; brave and serper implement
// it.
type webSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]SearchHit, error)
}

// NewWebSearchTool builds the general web search tool.
func NewWebSearchTool() *Tool {
	return &Tool{
		Name:        core.ToolWebSearch,
		Description: "Search the web. Use for reviews, comparisons and store-agnostic research.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "search query"},
				"limit": map[string]any{"type": "integer", "description": "maximum number of results"},
				"depth": map[string]any{"type": "integer", "description": "result depth, 1 for headlines only"},
			},
			"required": []string{"query"},
		},
		Validate: func(args map[string]any) error {
			return requireString(args, "query")
		},
		Execute: executeWebSearch,
	}
}

func executeWebSearch(ctx context.Context, args map[string]any, rc *RunContext) core.ToolResult {
	cfg := rc.Config.Tools.WebSearch
	limit := intArg(args, "limit", cfg.MaxResults)
	if limit <= 0 {
		limit = 8
	}

	var searcher webSearcher
	switch cfg.Provider {
	case "serper":
		searcher = serperSearch{apiKey: cfg.SerperAPIKey}
	case "brave", "":
		searcher = braveSearch{apiKey: cfg.BraveAPIKey}
	default:
		return core.Failuref("not_configured", "unsupported web search provider: %s", cfg.Provider)
	}

	hits, err := searcher.Discover(ctx, stringArg(args, "query"), limit)
	if err != nil {
		return core.Failuref("transport", "web search failed: %v", err)
	}
	return core.Success(map[string]any{"results": hits})
}

type braveSearch struct {
	apiKey string
}

func (s braveSearch) Discover(ctx context.Context, q string, k int) ([]SearchHit, error) {
	// https://api.search.brave.com/app/documentation/web-search
	endpoint := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d", url.QueryEscape(q), k)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave returned status %d", resp.StatusCode)
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var hits []SearchHit
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		hits = append(hits, SearchHit{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return hits, nil
}

type serperSearch struct {
	apiKey string
}

func (s serperSearch) Discover(ctx context.Context, q string, k int) ([]SearchHit, error) {
	body, err := json.Marshal(map[string]any{"q": q, "num": k})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://google.serper.dev/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper returned status %d", resp.StatusCode)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var hits []SearchHit
	for i, r := range raw.Organic {
		if i >= k {
			break
		}
		hits = append(hits, SearchHit{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return hits, nil
}
