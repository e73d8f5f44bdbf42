package core

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/cartpilot/cartpilot/config"
)

// Selection parsing. One canonical parser for "which option, how many"
// with an explicit precedence order: explicit "option N" phrasing wins
// over ordinal words, which win over a bare small integer. Earlier
// iterations grew a near-duplicate of this per call site; this is the
// converged one.

var (
	// '#' is not a word character, so it sits outside the \b-anchored
	// keyword alternation.
	optionRefRe = regexp.MustCompile(`(?i)(?:\b(?:option|item|number|no\.?)\s*|#\s*)(\d{1,3})\b`)
	ordinalRe   = regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)\b`)
	qtyRe       = regexp.MustCompile(`(?i)\b(?:qty|quantity)\s*[:=]?\s*(\d{1,3})\b`)
	qtyOfRe     = regexp.MustCompile(`(?i)\b(\d{1,3})\s+of\s+(?:them|those|these|it)\b`)
	qtyTimesRe  = regexp.MustCompile(`(?i)\bx\s*(\d{1,3})\b`)
	qtyUnitsRe  = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:pcs|pieces|units)\b`)
	bareIntRe   = regexp.MustCompile(`^\s*(\d{1,2})\s*$`)
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

// ParseSelection extracts an option choice and/or quantity from free
// text. optionCount gates the bare-integer form: a lone "3" only reads
// as a selection while options are actually on the table. Zero values
// mean "not mentioned".
func ParseSelection(text string, optionCount int) (option, quantity int) {
	quantity = parseQuantity(text)

	if m := optionRefRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, quantity
		}
	}
	if m := ordinalRe.FindStringSubmatch(text); m != nil {
		return ordinalWords[strings.ToLower(m[1])], quantity
	}
	if optionCount > 0 {
		if m := bareIntRe.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 20 {
				return n, quantity
			}
		}
	}
	return 0, quantity
}

func parseQuantity(text string) int {
	for _, re := range []*regexp.Regexp{qtyRe, qtyOfRe, qtyTimesRe, qtyUnitsRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// IntentClassifier wraps the single-shot classifier model calls:
// buy-intent and link-open. Both default to the conservative branch on
// any failure.
type IntentClassifier struct {
	cfg      *config.Config
	provider LLMProvider
	logger   *log.Logger
}

// NewIntentClassifier creates an intent classifier.
func NewIntentClassifier(cfg *config.Config, provider LLMProvider) *IntentClassifier {
	return &IntentClassifier{
		cfg:      cfg,
		provider: provider,
		logger:   log.New(log.Writer(), "[INTENT] ", log.LstdFlags),
	}
}

// BuyIntent classifies whether the user wants to check out now, in
// context. True only when the model says so with confidence at or above
// the configured threshold; a model error, non-JSON output or missing
// fields all read as false.
func (c *IntentClassifier) BuyIntent(ctx context.Context, userText, lastAssistant string, sess *Session) bool {
	var b strings.Builder
	b.WriteString(`You classify whether a shopping assistant user wants to proceed to checkout NOW.

Respond with ONLY a JSON object: {"buy_intent": true/false, "confidence": 0.0-1.0}

buy_intent is true only for a clear go-ahead ("buy it", "check out", "order option 2", "yes, take my money"), not for browsing, comparing or questions.`)

	if sess.SelectedOption > 0 {
		b.WriteString("\n\nThe user has already selected option ")
		b.WriteString(strconv.Itoa(sess.SelectedOption))
		b.WriteString(".")
	}
	if lastAssistant != "" {
		b.WriteString("\n\nASSISTANT'S LAST MESSAGE:\n")
		b.WriteString(lastAssistant)
	}
	b.WriteString("\n\nUSER MESSAGE:\n")
	b.WriteString(userText)

	resp, err := c.provider.Generate(ctx, b.String(), c.cfg.LLM.Routing.Classifier, map[string]any{
		"temperature": 0.0,
		"max_tokens":  80,
	})
	if err != nil {
		c.debugf("buy-intent call failed: %v", err)
		return false
	}

	jsonStr, ok := ExtractJSONObject(resp)
	if !ok {
		return false
	}
	var verdict struct {
		BuyIntent  bool    `json:"buy_intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &verdict); err != nil {
		return false
	}
	return verdict.BuyIntent && verdict.Confidence >= c.cfg.Agent.BuyIntentThreshold
}

// LinksToOpen decides which of the URLs mentioned in the final answer
// should be opened in the browser, capped. Only candidate URLs are
// returned; anything else the model invents is dropped. Errors mean no
// auto-open.
func (c *IntentClassifier) LinksToOpen(ctx context.Context, finalText, userText string, urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	limit := c.cfg.Agent.AutoOpenLinkCap
	if limit <= 0 {
		limit = 2
	}

	var b strings.Builder
	b.WriteString(`You decide whether a shopping assistant should open links in the user's browser. Open a link only when the user explicitly asked to open something, or the assistant's own answer offered opening it as the next step.

Respond with ONLY a JSON object: {"open": ["url", ...]}. Use an empty array when nothing should open.

CANDIDATE URLS:
`)
	for _, u := range urls {
		b.WriteString("- ")
		b.WriteString(u)
		b.WriteString("\n")
	}
	b.WriteString("\nUSER MESSAGE:\n")
	b.WriteString(userText)
	b.WriteString("\n\nASSISTANT ANSWER:\n")
	b.WriteString(finalText)

	resp, err := c.provider.Generate(ctx, b.String(), c.cfg.LLM.Routing.Classifier, map[string]any{
		"temperature": 0.0,
		"max_tokens":  200,
	})
	if err != nil {
		c.debugf("link-open call failed: %v", err)
		return nil
	}
	jsonStr, ok := ExtractJSONObject(resp)
	if !ok {
		return nil
	}
	var verdict struct {
		Open []string `json:"open"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &verdict); err != nil {
		return nil
	}

	candidates := make(map[string]bool, len(urls))
	for _, u := range urls {
		candidates[u] = true
	}
	var open []string
	for _, u := range verdict.Open {
		if !candidates[u] {
			continue
		}
		open = append(open, u)
		if len(open) == limit {
			break
		}
	}
	return open
}

func (c *IntentClassifier) debugf(format string, args ...any) {
	if c.cfg.General.Debug {
		c.logger.Printf(format, args...)
	}
}
