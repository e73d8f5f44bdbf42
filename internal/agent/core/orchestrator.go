package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/telemetry"
)

// Orchestrator coordinates one user turn end to end: fast heuristics,
// session update, buy-intent, auto-checkout, planning, planned tool
// execution, the main tool loop and the post-loop link pass. Stages run
// strictly in that order; later stages observe the session mutations of
// earlier ones within the same turn.
type Orchestrator struct {
	cfg       *config.Config
	provider  LLMProvider
	registry  ToolRunner
	planner   *Planner
	intents   *IntentClassifier
	checkout  *CheckoutDecider
	loop      *ToolLoop
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(cfg *config.Config, provider LLMProvider, registry ToolRunner, tele *telemetry.Telemetry) *Orchestrator {
	intents := NewIntentClassifier(cfg, provider)
	return &Orchestrator{
		cfg:       cfg,
		provider:  provider,
		registry:  registry,
		planner:   NewPlanner(cfg, provider, registry, tele),
		intents:   intents,
		checkout:  NewCheckoutDecider(cfg, registry, tele),
		loop:      NewToolLoop(cfg, provider, registry, intents, tele),
		telemetry: tele,
		logger:    log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// HandleTurn processes one user turn against the given session.
// Everything that can go wrong inside the turn is absorbed into
// degraded behavior; the only error returned is the primary model
// client being unusable, which the process boundary should treat as
// fatal.
func (o *Orchestrator) HandleTurn(ctx context.Context, sess *Session, userText string, history []Message) (TurnResult, error) {
	start := time.Now()

	// Fast heuristics first: selection and quantity parse without any
	// model call.
	if opt, qty := ParseSelection(userText, len(sess.LastOptions)); opt > 0 || qty > 0 {
		sess.Select(opt, qty)
	}

	lastAssistant := lastAssistantText(history)

	// Auto-checkout is always attempted before planning.
	buyIntent := o.intents.BuyIntent(ctx, userText, lastAssistant, sess)
	if msg, ok := o.checkout.TryAutoCheckout(ctx, sess, buyIntent); ok {
		sess.ClearSelection()
		o.telemetry.RecordTurn(time.Since(start), true)
		return TurnResult{Reply: msg, Options: sess.LastOptions, AutoCheckout: true}, nil
	}

	// Planning pass for the information-gathering tools. A nil plan is
	// a degraded turn, not an error.
	plannedContext := o.executePlanned(ctx, sess, o.planner.PlanTurn(ctx, userText, sess))

	messages := o.buildConversation(sess, userText, history, plannedContext)
	reply, _, err := o.loop.Run(ctx, sess, messages)
	if err != nil {
		o.telemetry.RecordTurn(time.Since(start), false)
		return TurnResult{}, err
	}

	o.loop.AutoOpenLinks(ctx, sess, reply, userText)

	o.telemetry.RecordTurn(time.Since(start), true)
	return TurnResult{Reply: reply, Options: sess.LastOptions}, nil
}

// executePlanned runs the planned calls in order, folds search results
// into the session, and renders every result into a context block for
// the main loop. Tool failures become observations like any other.
func (o *Orchestrator) executePlanned(ctx context.Context, sess *Session, plan *Plan) string {
	if plan == nil || len(plan.Calls) == 0 {
		return ""
	}
	var b strings.Builder
	for _, call := range plan.Calls {
		result := o.registry.Dispatch(ctx, call.Name, call.Args, sess)
		o.telemetry.RecordToolCall(call.Name, result.OK)

		serialized := result.Serialize()
		if call.Name == ToolShopifySearch {
			sess.ApplySearchResult(serialized)
		}
		fmt.Fprintf(&b, "Result of %s: %s\n", call.Name, serialized)
	}
	return b.String()
}

func (o *Orchestrator) buildConversation(sess *Session, userText string, history []Message, plannedContext string) []Message {
	messages := make([]Message, 0, len(history)+3)
	messages = append(messages, Message{Role: RoleSystem, Content: o.systemPrompt(sess)})
	messages = append(messages, history...)
	if plannedContext != "" {
		messages = append(messages, Message{
			Role:    RoleSystem,
			Content: "Tool results already gathered for this turn:\n" + plannedContext,
		})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userText})
	return messages
}

func (o *Orchestrator) systemPrompt(sess *Session) string {
	var b strings.Builder
	b.WriteString(`You are a shopping assistant. You help the user find products, compare options and check out. Use the available tools when you need catalog data, web results or page contents. Present options by their number so the user can pick one. Never expose raw tool output or error codes; explain in natural language.`)

	if sess.LastShipsTo != "" {
		fmt.Fprintf(&b, "\n\nShipping destination: %s", sess.LastShipsTo)
	}
	if len(sess.LastOptions) > 0 {
		b.WriteString("\n\nOptions currently on the table:\n")
		b.WriteString(SummarizeOptions(sess.LastOptions, o.cfg.Agent.OptionSummaryCap))
	}
	if sess.SelectedOption > 0 {
		fmt.Fprintf(&b, "\n\nThe user has selected option %d", sess.SelectedOption)
		if sess.SelectedQuantity > 0 {
			fmt.Fprintf(&b, " (quantity %d)", sess.SelectedQuantity)
		}
		b.WriteString(".")
	}
	return b.String()
}

func lastAssistantText(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant && history[i].Content != "" {
			return history[i].Content
		}
	}
	return ""
}
