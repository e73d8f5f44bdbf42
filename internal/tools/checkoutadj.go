package tools

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/cartpilot/cartpilot/internal/agent/core"
)

// cartLineRe matches one VARIANT:QTY segment of a Shopify cart
// permalink path (/cart/123:1 or /cart/123:1,456:2).
var cartLineRe = regexp.MustCompile(`^(\d+):(\d+)$`)

// NewCheckoutAdjustTool builds the checkout-quantity tool. It is pure
// URL surgery, no network: cart permalink quantity segments are
// rewritten, and as a fallback a quantity query parameter is set. A URL
// it does not understand comes back unchanged rather than failing.
func NewCheckoutAdjustTool() *Tool {
	return &Tool{
		Name:        core.ToolCheckoutAdjust,
		Description: "Set the purchase quantity on a checkout URL. Returns the adjusted URL.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"checkout_url": map[string]any{"type": "string", "description": "checkout or cart permalink URL"},
				"quantity":     map[string]any{"type": "integer", "description": "desired quantity, at least 1"},
			},
			"required": []string{"checkout_url", "quantity"},
		},
		Validate: func(args map[string]any) error {
			if err := requireString(args, "checkout_url"); err != nil {
				return err
			}
			if intArg(args, "quantity", 0) <= 0 {
				return fmt.Errorf("quantity must be a positive integer")
			}
			return nil
		},
		Execute: executeCheckoutAdjust,
	}
}

func executeCheckoutAdjust(ctx context.Context, args map[string]any, rc *RunContext) core.ToolResult {
	rawURL := stringArg(args, "checkout_url")
	quantity := intArg(args, "quantity", 1)

	adjusted, err := AdjustCheckoutQuantity(rawURL, quantity)
	if err != nil {
		return core.Failuref("invalid_url", "cannot adjust %s: %v", rawURL, err)
	}
	return core.Success(map[string]any{"url": adjusted, "quantity": quantity})
}

// AdjustCheckoutQuantity rewrites the quantity encoded in a checkout
// URL. Cart permalink segments (/cart/VARIANT:QTY) all get the new
// quantity; otherwise a quantity query parameter is set. The query
// string is preserved either way.
func AdjustCheckoutQuantity(rawURL string, quantity int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL")
	}

	if idx := strings.Index(u.Path, "/cart/"); idx != -1 {
		prefix := u.Path[:idx+len("/cart/")]
		rest := u.Path[idx+len("/cart/"):]
		segments := strings.Split(rest, ",")
		rewritten := false
		for i, seg := range segments {
			if m := cartLineRe.FindStringSubmatch(seg); m != nil {
				segments[i] = fmt.Sprintf("%s:%d", m[1], quantity)
				rewritten = true
			}
		}
		if rewritten {
			u.Path = prefix + strings.Join(segments, ",")
			return u.String(), nil
		}
	}

	q := u.Query()
	if q.Has("quantity") || q.Has("qty") {
		if q.Has("quantity") {
			q.Set("quantity", fmt.Sprint(quantity))
		}
		if q.Has("qty") {
			q.Set("qty", fmt.Sprint(quantity))
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	// Nothing recognizable to rewrite; hand the URL back unchanged.
	return u.String(), nil
}
