package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/core"
)

func shopifyRegistry(t *testing.T, endpoint string) *Registry {
	t.Helper()
	cfg := testConfig()
	cfg.Tools.Shopify = config.ShopifyConfig{
		Endpoint: endpoint,
		APIKey:   "test-key",
		MaxItems: 5,
		Timeout:  5 * time.Second,
	}
	r := NewRegistry(cfg)
	if err := r.Register(NewShopifySearchTool()); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestShopifySearchPassesBridgeEnvelopeThrough(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Error(err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ships_to": "US",
			"query":    "mug",
			"options":  []map[string]any{{"title": "Mug", "price": "9", "checkout_url": "https://s.example.com/cart/1:1"}},
		})
	}))
	defer srv.Close()

	r := shopifyRegistry(t, srv.URL)
	sess := core.NewSession("t")
	res := r.Dispatch(context.Background(), core.ToolShopifySearch, map[string]any{
		"query":     "mug",
		"ships_to":  "US",
		"max_price": 20.0,
	}, sess)
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if gotPayload["query"] != "mug" || gotPayload["ships_to"] != "US" || gotPayload["max_price"] != 20.0 {
		t.Fatalf("payload = %v", gotPayload)
	}

	// The serialized result must be exactly the shape the session
	// normalizer folds in.
	if !sess.ApplySearchResult(res.Serialize()) {
		t.Fatal("normalizer rejected the serialized search result")
	}
	if len(sess.LastOptions) != 1 || sess.LastOptions[0].Title != "Mug" {
		t.Fatalf("options = %+v", sess.LastOptions)
	}
}

func TestShopifySearchUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "store unreachable"})
	}))
	defer srv.Close()

	r := shopifyRegistry(t, srv.URL)
	res := r.Dispatch(context.Background(), core.ToolShopifySearch, map[string]any{"query": "mug"}, core.NewSession("t"))
	if res.OK || res.Error.Code != "upstream" {
		t.Fatalf("result = %+v", res)
	}
}

func TestShopifySearchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := shopifyRegistry(t, srv.URL)
	res := r.Dispatch(context.Background(), core.ToolShopifySearch, map[string]any{"query": "mug"}, core.NewSession("t"))
	if res.OK || res.Error.Code != "upstream" {
		t.Fatalf("result = %+v", res)
	}
}

func TestShopifySearchNotConfigured(t *testing.T) {
	r := shopifyRegistry(t, "")
	res := r.Dispatch(context.Background(), core.ToolShopifySearch, map[string]any{"query": "mug"}, core.NewSession("t"))
	if res.OK || res.Error.Code != "not_configured" {
		t.Fatalf("result = %+v", res)
	}
}

func TestShopifySearchRequiresQuery(t *testing.T) {
	r := shopifyRegistry(t, "http://unused.example.com")
	res := r.Dispatch(context.Background(), core.ToolShopifySearch, map[string]any{}, core.NewSession("t"))
	if res.OK || res.Error.Code != "invalid_arguments" {
		t.Fatalf("result = %+v", res)
	}
}
