package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/telemetry"
)

// CheckoutDecider is the guarded short-circuit path: when the user
// wants to buy and the session already holds a complete, resolvable
// selection, it adjusts the checkout URL's quantity and opens it
// without involving the planner or the main loop.
type CheckoutDecider struct {
	cfg       *config.Config
	registry  ToolRunner
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewCheckoutDecider creates a checkout decider.
func NewCheckoutDecider(cfg *config.Config, registry ToolRunner, tele *telemetry.Telemetry) *CheckoutDecider {
	return &CheckoutDecider{
		cfg:       cfg,
		registry:  registry,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[CHECKOUT] ", log.LstdFlags),
	}
}

// TryAutoCheckout runs the guard chain and, when everything lines up,
// invokes checkout adjustment followed by browser open. It returns the
// confirmation message and true on success; on any guard failing or
// either tool failing it reports false and the turn proceeds normally.
// Tool failures never escape; they are logged in debug mode only.
func (d *CheckoutDecider) TryAutoCheckout(ctx context.Context, sess *Session, buyIntent bool) (string, bool) {
	if !buyIntent {
		return "", false
	}
	if sess.SelectedOption == 0 {
		d.telemetry.RecordAutoCheckout(false)
		return "", false
	}
	// Never block solely on a missing quantity once an option is chosen.
	if sess.SelectedQuantity == 0 {
		sess.SelectedQuantity = 1
	}

	checkoutURL := sess.CheckoutURLFor(sess.SelectedOption)
	if checkoutURL == "" {
		d.debugf("option %d has no checkout URL; skipping auto-checkout", sess.SelectedOption)
		d.telemetry.RecordAutoCheckout(false)
		return "", false
	}

	adjusted := d.adjustQuantity(ctx, sess, checkoutURL)

	openRes := d.registry.Dispatch(ctx, ToolBrowserOpen, map[string]any{"url": adjusted}, sess)
	d.telemetry.RecordToolCall(ToolBrowserOpen, openRes.OK)
	if !openRes.OK {
		d.debugf("browser open failed: %v", openRes.Error)
		d.telemetry.RecordAutoCheckout(false)
		return "", false
	}

	d.telemetry.RecordAutoCheckout(true)
	msg := fmt.Sprintf("Opened checkout for Option %d (qty %d). Complete the purchase in your browser.",
		sess.SelectedOption, sess.SelectedQuantity)
	return msg, true
}

// adjustQuantity runs the checkout-quantity tool and extracts the
// possibly-rewritten URL from its result, falling back to the original
// URL whenever the result is unusable.
func (d *CheckoutDecider) adjustQuantity(ctx context.Context, sess *Session, checkoutURL string) string {
	res := d.registry.Dispatch(ctx, ToolCheckoutAdjust, map[string]any{
		"checkout_url": checkoutURL,
		"quantity":     sess.SelectedQuantity,
	}, sess)
	d.telemetry.RecordToolCall(ToolCheckoutAdjust, res.OK)
	if !res.OK {
		d.debugf("quantity adjustment failed, using original URL: %v", res.Error)
		return checkoutURL
	}
	if url := extractAdjustedURL(res.Data); url != "" {
		return url
	}
	return checkoutURL
}

// extractAdjustedURL accepts the two shapes adjustment results arrive
// in: a raw URL string (possibly wrapped in JSON) or a structured
// object with a url field.
func extractAdjustedURL(data any) string {
	switch v := data.(type) {
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(s), &obj); err == nil {
				return extractAdjustedURL(obj)
			}
			return ""
		}
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			return s
		}
		return ""
	case map[string]any:
		for _, key := range []string{"url", "checkout_url", "adjusted_url"} {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	default:
		return ""
	}
}

func (d *CheckoutDecider) debugf(format string, args ...any) {
	if d.cfg.General.Debug {
		d.logger.Printf(format, args...)
	}
}
