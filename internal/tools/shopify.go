package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cartpilot/cartpilot/internal/agent/core"
)

// NewShopifySearchTool builds the catalog search tool. It calls the
// configured storefront bridge and passes the bridge's result envelope
// through untouched, so the session normalizer sees the wire shape it
// understands.
func NewShopifySearchTool() *Tool {
	return &Tool{
		Name:        core.ToolShopifySearch,
		Description: "Search the product catalog. Returns a numbered list of buyable options with prices, sellers and checkout links.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":     map[string]any{"type": "string", "description": "free-text product query"},
				"ships_to":  map[string]any{"type": "string", "description": "2-letter destination country code"},
				"max_price": map[string]any{"type": "number", "description": "maximum unit price"},
				"limit":     map[string]any{"type": "integer", "description": "maximum number of options"},
			},
			"required": []string{"query"},
		},
		Validate: func(args map[string]any) error {
			return requireString(args, "query")
		},
		Execute: executeShopifySearch,
	}
}

func executeShopifySearch(ctx context.Context, args map[string]any, rc *RunContext) core.ToolResult {
	cfg := rc.Config.Tools.Shopify
	if cfg.Endpoint == "" {
		return core.Failure("not_configured", "shopify bridge endpoint is not configured")
	}

	payload := map[string]any{
		"query": stringArg(args, "query"),
		"limit": intArg(args, "limit", cfg.MaxItems),
	}
	if dest := stringArg(args, "ships_to"); dest != "" {
		payload["ships_to"] = dest
	}
	if maxPrice, ok := floatArg(args, "max_price"); ok {
		payload["max_price"] = maxPrice
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.Failuref("marshal", "failed to marshal search request: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.Endpoint+"/search", bytes.NewReader(body))
	if err != nil {
		return core.Failuref("request", "failed to create search request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return core.Failuref("transport", "catalog search failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.Failuref("upstream", "catalog bridge returned status %d", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return core.Failuref("decode", "failed to parse catalog response: %v", err)
	}
	if ok, present := result["ok"].(bool); present && !ok {
		msg := "catalog search reported failure"
		if s, ok := result["error"].(string); ok && s != "" {
			msg = fmt.Sprintf("catalog search reported failure: %s", s)
		}
		return core.Failure("upstream", msg)
	}
	return core.Success(result)
}
