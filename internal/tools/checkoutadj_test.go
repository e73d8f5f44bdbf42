package tools

import (
	"context"
	"testing"

	"github.com/cartpilot/cartpilot/internal/agent/core"
)

func TestAdjustCheckoutQuantity(t *testing.T) {
	cases := []struct {
		name     string
		rawURL   string
		quantity int
		want     string
	}{
		{
			"single permalink line",
			"https://shop.example.com/cart/123:1", 3,
			"https://shop.example.com/cart/123:3",
		},
		{
			"permalink preserves query",
			"https://shop.example.com/cart/123:1?discount=SAVE10", 2,
			"https://shop.example.com/cart/123:2?discount=SAVE10",
		},
		{
			"multiple lines all rewritten",
			"https://shop.example.com/cart/123:1,456:2", 5,
			"https://shop.example.com/cart/123:5,456:5",
		},
		{
			"quantity query parameter",
			"https://shop.example.com/checkout?item=9&quantity=1", 4,
			"https://shop.example.com/checkout?item=9&quantity=4",
		},
		{
			"qty query parameter",
			"https://shop.example.com/buy?qty=1", 2,
			"https://shop.example.com/buy?qty=2",
		},
		{
			"nothing recognizable stays unchanged",
			"https://shop.example.com/products/mug", 7,
			"https://shop.example.com/products/mug",
		},
		{
			"cart path without permalink lines",
			"https://shop.example.com/cart/view", 2,
			"https://shop.example.com/cart/view",
		},
	}
	for _, tc := range cases {
		got, err := AdjustCheckoutQuantity(tc.rawURL, tc.quantity)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s:\n got %s\nwant %s", tc.name, got, tc.want)
		}
	}
}

func TestAdjustCheckoutQuantityRejectsRelativeURLs(t *testing.T) {
	if _, err := AdjustCheckoutQuantity("/cart/123:1", 2); err == nil {
		t.Fatal("relative URL accepted")
	}
	if _, err := AdjustCheckoutQuantity("://bad", 2); err == nil {
		t.Fatal("unparsable URL accepted")
	}
}

func TestCheckoutAdjustToolDispatch(t *testing.T) {
	r := NewRegistry(testConfig())
	if err := r.Register(NewCheckoutAdjustTool()); err != nil {
		t.Fatal(err)
	}

	res := r.Dispatch(context.Background(), core.ToolCheckoutAdjust, map[string]any{
		"checkout_url": "https://shop.example.com/cart/123:1",
		"quantity":     3.0, // JSON numbers arrive as float64
	}, core.NewSession("t"))
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	data := res.Data.(map[string]any)
	if data["url"] != "https://shop.example.com/cart/123:3" || data["quantity"] != 3 {
		t.Fatalf("data = %v", data)
	}

	res = r.Dispatch(context.Background(), core.ToolCheckoutAdjust, map[string]any{
		"checkout_url": "https://shop.example.com/cart/123:1",
		"quantity":     0,
	}, core.NewSession("t"))
	if res.OK || res.Error.Code != "invalid_arguments" {
		t.Fatalf("zero quantity accepted: %+v", res)
	}
}
