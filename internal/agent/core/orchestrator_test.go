package core

import (
	"context"
	"strings"
	"testing"

	"github.com/cartpilot/cartpilot/internal/agent/telemetry"
)

func newTestOrchestrator(provider *stubProvider, runner *stubRunner) *Orchestrator {
	return NewOrchestrator(testConfig(), provider, runner, telemetry.New())
}

const (
	noBuyIntent  = `{"buy_intent": false, "confidence": 0.9}`
	yesBuyIntent = `{"buy_intent": true, "confidence": 0.9}`
	emptyPlan    = `{"tool_calls":[]}`
)

func TestHandleTurnSelectionThenAutoCheckout(t *testing.T) {
	runner := &stubRunner{names: allTools()}
	runner.dispatch = func(name string, args map[string]any, _ *Session) ToolResult {
		if name == ToolCheckoutAdjust {
			return Success(map[string]any{"url": "https://mugs.example.com/cart/222:3"})
		}
		return Success(map[string]any{"opened": args["url"]})
	}
	sess := sessionWithOptions()

	// Turn one: pure selection, no purchase yet.
	provider := &stubProvider{generateReplies: []string{noBuyIntent, emptyPlan}}
	provider.chat = func(_ []Message, _ []ToolSpec) (ChatResponse, error) {
		return ChatResponse{Content: "Noted, option 2 with quantity 3."}, nil
	}
	orch := newTestOrchestrator(provider, runner)

	result, err := orch.HandleTurn(context.Background(), sess, "option 2, quantity 3", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.AutoCheckout {
		t.Fatal("checked out on a selection-only turn")
	}
	if sess.SelectedOption != 2 || sess.SelectedQuantity != 3 {
		t.Fatalf("selection = %d/%d", sess.SelectedOption, sess.SelectedQuantity)
	}
	if len(runner.recorded()) != 0 {
		t.Fatalf("tools dispatched on a selection-only turn: %+v", runner.recorded())
	}

	// Turn two: a clear go-ahead short-circuits to checkout.
	provider2 := &stubProvider{generateReplies: []string{yesBuyIntent}}
	orch2 := newTestOrchestrator(provider2, runner)
	history := []Message{
		{Role: RoleUser, Content: "option 2, quantity 3"},
		{Role: RoleAssistant, Content: result.Reply},
	}
	result2, err := orch2.HandleTurn(context.Background(), sess, "buy it", history)
	if err != nil {
		t.Fatal(err)
	}
	if !result2.AutoCheckout {
		t.Fatalf("expected auto-checkout, reply = %q", result2.Reply)
	}
	if !strings.Contains(result2.Reply, "Option 2") || !strings.Contains(result2.Reply, "qty 3") {
		t.Fatalf("reply = %q", result2.Reply)
	}
	if sess.SelectedOption != 0 || sess.SelectedQuantity != 0 {
		t.Fatal("selection not cleared after checkout")
	}

	calls := runner.recorded()
	var opens int
	for _, c := range calls {
		if c.Name == ToolBrowserOpen {
			opens++
			if c.Args["url"] != "https://mugs.example.com/cart/222:3" {
				t.Fatalf("opened %v", c.Args["url"])
			}
		}
	}
	if opens != 1 {
		t.Fatalf("browser opened %d times, want exactly 1", opens)
	}
}

func TestHandleTurnRunsPlannedToolsAndFoldsResults(t *testing.T) {
	plan := `{"tool_calls":[{"name":"shopify_search","args":{"query":"espresso cups","ships_to":"US"}}]}`
	provider := &stubProvider{generateReplies: []string{noBuyIntent, plan}}

	var sawPlannedContext bool
	provider.chat = func(messages []Message, _ []ToolSpec) (ChatResponse, error) {
		for _, m := range messages {
			if m.Role == RoleSystem && strings.Contains(m.Content, "Result of shopify_search") {
				sawPlannedContext = true
			}
		}
		return ChatResponse{Content: "Two options found."}, nil
	}

	runner := &stubRunner{names: allTools()}
	runner.dispatch = func(name string, _ map[string]any, _ *Session) ToolResult {
		return Success(map[string]any{
			"ships_to": "US",
			"query":    "espresso cups",
			"options": []map[string]any{
				{"title": "Cup A", "price": "10", "checkout_url": "https://s.example.com/cart/1:1"},
				{"title": "Cup B", "price": "12", "checkout_url": "https://s.example.com/cart/2:1"},
			},
		})
	}

	sess := NewSession("t")
	result, err := newTestOrchestrator(provider, runner).HandleTurn(context.Background(), sess, "find espresso cups, ship to US", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !sawPlannedContext {
		t.Fatal("planned tool results not handed to the main loop")
	}
	if len(result.Options) != 2 || result.Options[0].Title != "Cup A" {
		t.Fatalf("options = %+v", result.Options)
	}
	if sess.LastQuery != "espresso cups" || sess.LastShipsTo != "US" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestHandleTurnDegradesWhenPlanningFails(t *testing.T) {
	// Every classifier call returns garbage; the turn must still complete
	// through the main loop with zero planned tools.
	provider := &stubProvider{generateReplies: []string{noBuyIntent, "not json at all"}}
	provider.chat = func(_ []Message, _ []ToolSpec) (ChatResponse, error) {
		return ChatResponse{Content: "Happy to help anyway."}, nil
	}
	runner := &stubRunner{names: allTools()}

	result, err := newTestOrchestrator(provider, runner).HandleTurn(context.Background(), NewSession("t"), "hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Reply != "Happy to help anyway." {
		t.Fatalf("reply = %q", result.Reply)
	}
	if len(runner.recorded()) != 0 {
		t.Fatal("tools ran without a plan")
	}
}

func TestLastAssistantText(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "more"},
		{Role: RoleAssistant, Content: ""},
	}
	if got := lastAssistantText(history); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := lastAssistantText(nil); got != "" {
		t.Fatalf("got %q", got)
	}
}
