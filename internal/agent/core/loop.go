package core

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/telemetry"
)

// FallbackReply is the fixed degradation message when the loop budget
// runs out before the model produces a tool-call-free answer.
const FallbackReply = "I wasn't able to finish that request. Could you rephrase it or narrow it down?"

// ToolLoop is the bounded iterative loop that gives the primary model
// the full toolset, executes requested calls, feeds observations back
// and stops on the first tool-call-free response.
type ToolLoop struct {
	cfg       *config.Config
	provider  LLMProvider
	registry  ToolRunner
	intents   *IntentClassifier
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewToolLoop creates a tool loop.
func NewToolLoop(cfg *config.Config, provider LLMProvider, registry ToolRunner, intents *IntentClassifier, tele *telemetry.Telemetry) *ToolLoop {
	return &ToolLoop{
		cfg:       cfg,
		provider:  provider,
		registry:  registry,
		intents:   intents,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[LOOP] ", log.LstdFlags),
	}
}

// Run iterates until the model answers without tool calls or the step
// budget is exhausted. Tool failures are folded into the conversation
// as observations and never abort the loop; only a model-client error
// propagates, since the process cannot meaningfully continue without
// the primary model.
func (l *ToolLoop) Run(ctx context.Context, sess *Session, messages []Message) (string, []Message, error) {
	maxSteps := l.cfg.Agent.MaxLoopSteps
	if maxSteps <= 0 {
		maxSteps = 6
	}

	for step := 0; step < maxSteps; step++ {
		resp, err := l.provider.ChatWithTools(ctx, messages, l.registry.Specs(), l.cfg.LLM.Routing.Chatting, map[string]any{
			"temperature": 0.7,
		})
		if err != nil {
			return "", messages, fmt.Errorf("primary model call failed: %w", err)
		}
		l.telemetry.RecordLLMUsage(l.cfg.LLM.Routing.Chatting, resp.PromptTokens, resp.CompletionTokens)

		if len(resp.ToolCalls) == 0 {
			return resp.Content, messages, nil
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			name, args := l.applyCartGuardrail(call.Name, call.Args)
			result := l.registry.Dispatch(ctx, name, args, sess)
			l.telemetry.RecordToolCall(name, result.OK)

			serialized := result.Serialize()
			if name == ToolShopifySearch {
				// Search results reshape the session before the model
				// sees them.
				sess.ApplySearchResult(serialized)
			}
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    serialized,
				ToolCallID: call.ID,
				Name:       name,
			})
		}
	}

	l.debugf("step budget of %d exhausted without a final answer", maxSteps)
	return FallbackReply, messages, nil
}

// applyCartGuardrail overrides page reads of checkout/cart URLs into
// browser opens. Reading a checkout page's text is never useful and
// must not happen.
func (l *ToolLoop) applyCartGuardrail(name string, args map[string]any) (string, map[string]any) {
	if name != ToolWebFetch {
		return name, args
	}
	rawURL, _ := args["url"].(string)
	if !IsCartURL(rawURL) {
		return name, args
	}
	l.debugf("rerouting page read of cart URL %s to browser open", rawURL)
	return ToolBrowserOpen, map[string]any{"url": rawURL}
}

// IsCartURL reports whether a URL structurally looks like a
// checkout/cart page: a /cart/ path segment or a payment/checkout
// marker in the query string.
func IsCartURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if strings.Contains(u.Path, "/cart/") {
		return true
	}
	q := strings.ToLower(u.RawQuery)
	return strings.Contains(q, "checkout") || strings.Contains(q, "payment")
}

var urlRe = regexp.MustCompile(`https?://[^\s<>()"']+`)

// ExtractURLs pulls the URLs mentioned in text, in order, deduplicated,
// with trailing punctuation stripped.
func ExtractURLs(text string) []string {
	matches := urlRe.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var urls []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		urls = append(urls, m)
	}
	return urls
}

// AutoOpenLinks runs the link-open classifier over the final answer and
// opens the chosen URLs. Failures to open are logged, never surfaced to
// the user.
func (l *ToolLoop) AutoOpenLinks(ctx context.Context, sess *Session, finalText, userText string) {
	urls := ExtractURLs(finalText)
	if len(urls) == 0 {
		return
	}
	for _, u := range l.intents.LinksToOpen(ctx, finalText, userText, urls) {
		res := l.registry.Dispatch(ctx, ToolBrowserOpen, map[string]any{"url": u}, sess)
		l.telemetry.RecordToolCall(ToolBrowserOpen, res.OK)
		if !res.OK {
			l.debugf("auto-open of %s failed: %v", u, res.Error)
		}
	}
}

func (l *ToolLoop) debugf(format string, args ...any) {
	if l.cfg.General.Debug {
		l.logger.Printf(format, args...)
	}
}
