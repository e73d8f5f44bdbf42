package tools

import (
	"fmt"

	"github.com/cartpilot/cartpilot/config"
)

// DefaultRegistry builds a registry with the full toolset: catalog
// search, web search, page read, checkout quantity adjustment and
// browser open.
func DefaultRegistry(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry(cfg)
	for _, t := range []*Tool{
		NewShopifySearchTool(),
		NewWebSearchTool(),
		NewWebFetchTool(),
		NewCheckoutAdjustTool(),
		NewBrowserOpenTool(),
	} {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("registering %s: %w", t.Name, err)
		}
	}
	return reg, nil
}
