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

// planningAllowedTools are the only tools the planning pass may
// schedule: read-only, information-gathering tools. Transactional tools
// (checkout adjustment, browser open) are never planned; they are
// reached through the auto-checkout path or the main loop.
var planningAllowedTools = []string{ToolShopifySearch, ToolWebSearch, ToolWebFetch}

// Planner converts a user utterance plus compact session context into a
// bounded, schema-valid Plan, tolerating an unreliable text-generating
// collaborator. A turn with no plan is a degraded turn, not an error.
type Planner struct {
	cfg       *config.Config
	provider  LLMProvider
	registry  ToolRunner
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewPlanner creates a new planner instance.
func NewPlanner(cfg *config.Config, provider LLMProvider, registry ToolRunner, tele *telemetry.Telemetry) *Planner {
	return &Planner{
		cfg:       cfg,
		provider:  provider,
		registry:  registry,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// PlanTurn runs the full attempt ladder and returns the validated,
// filtered plan, or nil when every repair attempt failed.
func (p *Planner) PlanTurn(ctx context.Context, userText string, sess *Session) *Plan {
	prompt := p.buildPlanningPrompt(userText, sess)

	raw, err := p.generate(ctx, prompt)
	if err != nil {
		p.debugf("planning call failed: %v", err)
		p.telemetry.RecordPlanOutcome("provider_error")
		return nil
	}

	if plan, ok := p.parseWithRegexRepair(raw); ok {
		p.telemetry.RecordPlanOutcome("parsed")
		return p.filterPlan(plan, sess)
	}

	// Blind retry: tell the model its output was invalid without
	// echoing the broken text back at it.
	retryPrompt := prompt + "\n\nYour previous output was invalid JSON. Respond again with ONLY a valid JSON object in the required format."
	raw2, err := p.generate(ctx, retryPrompt)
	if err == nil {
		if plan, ok := p.parseWithRegexRepair(raw2); ok {
			p.telemetry.RecordPlanOutcome("reprompt")
			return p.filterPlan(plan, sess)
		}
		raw = raw2
	}

	// Dedicated repair pass: show the invalid text verbatim and ask for
	// only a corrected object.
	repaired, err := p.generate(ctx, p.buildRepairPrompt(raw))
	if err == nil {
		if plan, ok := p.parseWithRegexRepair(repaired); ok {
			p.telemetry.RecordPlanOutcome("repair_pass")
			return p.filterPlan(plan, sess)
		}
	}

	p.debugf("all planning attempts failed; proceeding with zero planned tools")
	p.telemetry.RecordPlanOutcome("failed")
	return nil
}

func (p *Planner) generate(ctx context.Context, prompt string) (string, error) {
	return p.provider.Generate(ctx, prompt, p.cfg.LLM.Routing.Classifier, map[string]any{
		"temperature": 0.1, // planning wants consistency, not creativity
		"max_tokens":  700,
	})
}

func (p *Planner) parseWithRegexRepair(text string) (*Plan, bool) {
	jsonStr, ok := ExtractJSONObject(text)
	if !ok {
		return nil, false
	}
	if plan, err := parsePlanJSON(jsonStr); err == nil {
		return plan, true
	}
	repaired := RepairFlattenedCalls(jsonStr)
	if repaired != jsonStr {
		if plan, err := parsePlanJSON(repaired); err == nil {
			return plan, true
		}
	}
	return nil, false
}

// buildPlanningPrompt enumerates only the allow-listed tools with their
// argument contracts plus explicit formatting rules.
func (p *Planner) buildPlanningPrompt(userText string, sess *Session) string {
	var b strings.Builder
	b.WriteString(`You are the planning pass of a shopping assistant. Decide which information-gathering tools to call for the user's request.

AVAILABLE TOOLS:
- shopify_search: search the product catalog. Args: "query" (string, required), "ships_to" (2-letter country code), "max_price" (number), "limit" (number).
- web_search: general web search. Args: "query" (string, required), "limit" (number), "depth" (number).
- web_fetch: read a web page. Args: "url" (string, required).

RULES:
1. Plan at most ` + fmt.Sprint(p.maxCalls()) + ` tool calls, in execution order.
2. Only plan tools from the list above. Never plan checkout or browser actions.
3. If no tool is needed, return an empty "tool_calls" array.

OUTPUT FORMAT (JSON, all keys and string values double-quoted, no trailing commas):
{
  "tool_calls": [
    {"name": "shopify_search", "args": {"query": "...", "ships_to": "US"}}
  ],
  "rationale": "one short sentence"
}

Respond with ONLY the JSON object.`)

	if sess.LastShipsTo != "" {
		fmt.Fprintf(&b, "\n\nKnown destination country: %s", sess.LastShipsTo)
	}
	if sess.LastQuery != "" {
		fmt.Fprintf(&b, "\nLast catalog query: %q", sess.LastQuery)
	}
	if len(sess.LastOptions) > 0 {
		b.WriteString("\nCurrent options:\n")
		b.WriteString(SummarizeOptions(sess.LastOptions, p.cfg.Agent.OptionSummaryCap))
	}

	fmt.Fprintf(&b, "\n\nUSER REQUEST: %s", userText)
	return b.String()
}

func (p *Planner) buildRepairPrompt(invalid string) string {
	return fmt.Sprintf(`The following text was supposed to be a JSON object of the shape {"tool_calls":[{"name":"...","args":{...}}],"rationale":"..."} but is invalid:

%s

Emit ONLY the corrected JSON object. No commentary.`, invalid)
}

func (p *Planner) maxCalls() int {
	if p.cfg.Agent.MaxPlannedCalls > 0 {
		return p.cfg.Agent.MaxPlannedCalls
	}
	return 3
}

// filterPlan reduces a parsed plan to tool names that are both
// allow-listed for planning and actually registered, capped to the
// first N entries in order. Overlong plans are trimmed, not rejected:
// a partial plan beats no plan. For shopify_search calls missing a
// destination the session's last known one is back-filled; a
// destination is never invented.
func (p *Planner) filterPlan(plan *Plan, sess *Session) *Plan {
	if plan == nil {
		return nil
	}
	allowed := make(map[string]bool, len(planningAllowedTools))
	for _, name := range planningAllowedTools {
		allowed[name] = true
	}

	filtered := make([]PlannedCall, 0, len(plan.Calls))
	for _, call := range plan.Calls {
		if !allowed[call.Name] || !p.registry.Has(call.Name) {
			p.debugf("dropping planned call to %q", call.Name)
			continue
		}
		if call.Args == nil {
			call.Args = map[string]any{}
		}
		if call.Name == ToolShopifySearch {
			if dest, _ := call.Args["ships_to"].(string); strings.TrimSpace(dest) == "" && sess.LastShipsTo != "" {
				call.Args["ships_to"] = sess.LastShipsTo
			}
		}
		filtered = append(filtered, call)
		if len(filtered) == p.maxCalls() {
			break
		}
	}
	plan.Calls = filtered
	return plan
}

func (p *Planner) debugf(format string, args ...any) {
	if p.cfg.General.Debug {
		p.logger.Printf(format, args...)
	}
}

// ExtractJSONObject locates the first '{' and the last '}' in free
// text, tolerating leading and trailing commentary the model should not
// have emitted but sometimes does.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// RepairFlattenedCalls patches the single most common malformation in
// planner output: an element of the tool_calls array missing its
// opening '{' so that "name": follows the '[' or ',' directly. The scan
// tracks nesting so only element-level "name" keys are touched; a
// "name" key inside an element's args object is left alone. Anything
// this does not fix escalates to the model-based repair pass instead.
func RepairFlattenedCalls(jsonStr string) string {
	keyIdx := strings.Index(jsonStr, `"tool_calls"`)
	if keyIdx == -1 {
		return jsonStr
	}
	open := strings.Index(jsonStr[keyIdx:], "[")
	if open == -1 {
		return jsonStr
	}
	open += keyIdx

	var b strings.Builder
	b.Grow(len(jsonStr) + 4)
	b.WriteString(jsonStr[:open+1])

	depth := 0 // nesting below the array itself
	inString := false
	escaped := false
	elementStart := true // directly after '[' or an element-level ','
	repaired := false
	for i := open + 1; i < len(jsonStr); i++ {
		c := jsonStr[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if elementStart && depth == 0 && strings.HasPrefix(jsonStr[i:], `"name"`) {
				rest := strings.TrimLeft(jsonStr[i+len(`"name"`):], " \t\r\n")
				if strings.HasPrefix(rest, ":") {
					// The element's stray closing '}' balances this.
					b.WriteByte('{')
					depth++
					repaired = true
				}
			}
			inString = true
			elementStart = false
		case '{', '[':
			depth++
			elementStart = false
		case '}':
			depth--
		case ']':
			if depth == 0 {
				if !repaired {
					return jsonStr
				}
				b.WriteString(jsonStr[i:])
				return b.String()
			}
			depth--
		case ',':
			if depth == 0 {
				elementStart = true
			}
		case ' ', '\t', '\n', '\r':
		default:
			elementStart = false
		}
		b.WriteByte(c)
	}
	// Unterminated array; nothing safe to do here.
	return jsonStr
}

// parsePlanJSON is the strict schema parse. The tool_calls key must be
// present and an array; rationale is optional.
func parsePlanJSON(jsonStr string) (*Plan, error) {
	var raw struct {
		ToolCalls *[]struct {
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"tool_calls"`
		Rationale string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, err
	}
	if raw.ToolCalls == nil {
		return nil, fmt.Errorf("missing tool_calls array")
	}
	plan := &Plan{Rationale: raw.Rationale}
	for _, tc := range *raw.ToolCalls {
		if strings.TrimSpace(tc.Name) == "" {
			continue
		}
		plan.Calls = append(plan.Calls, PlannedCall{Name: tc.Name, Args: tc.Args})
	}
	return plan, nil
}
