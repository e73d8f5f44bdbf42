package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message roles used in the conversation transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Canonical tool identifiers. The registry registers executors under
// these names; the core references them for the planning allow-list,
// the cart guardrail and the checkout short-circuit.
const (
	ToolShopifySearch  = "shopify_search"
	ToolWebSearch      = "web_search"
	ToolWebFetch       = "web_fetch"
	ToolCheckoutAdjust = "checkout_adjust"
	ToolBrowserOpen    = "browser_open"
)

// Message represents one role-tagged entry in a conversation.
type Message struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

// ToolCallRequest is a tool invocation requested by the model.
type ToolCallRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolSpec describes a tool to the model: name, prompt-facing
// description and a JSON-schema parameter object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatResponse is what the primary model returns for one invocation:
// either free text or one or more tool-call requests.
type ChatResponse struct {
	Content          string
	ToolCalls        []ToolCallRequest
	PromptTokens     int64
	CompletionTokens int64
}

// LLMProvider is the contract the core has with the model clients. The
// chatting model is invoked through ChatWithTools; the classifier model
// through Generate at low temperature.
type LLMProvider interface {
	// Generate produces free text for a single prompt.
	Generate(ctx context.Context, prompt string, model string, options map[string]any) (string, error)

	// ChatWithTools runs one chat turn with the given toolset bound.
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolSpec, model string, options map[string]any) (ChatResponse, error)
}

// ToolRunner is the core's view of the tool registry: name resolution,
// model-facing specs, and dispatch. Dispatch never returns an error;
// every failure is folded into the ToolResult.
type ToolRunner interface {
	Has(name string) bool
	Specs() []ToolSpec
	Dispatch(ctx context.Context, name string, args map[string]any, sess *Session) ToolResult
}

// ToolError is the machine-readable failure half of a ToolResult.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToolResult is the canonical envelope every tool invocation is reduced
// to before being serialized into the conversation. Exactly one of Data
// or Error is meaningful, keyed off OK.
type ToolResult struct {
	OK    bool           `json:"ok"`
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ToolError     `json:"error,omitempty"`
}

// Success wraps a payload in a successful ToolResult.
func Success(data any) ToolResult {
	return ToolResult{OK: true, Data: data}
}

// Failure builds a failed ToolResult with a machine-readable code.
func Failure(code, message string) ToolResult {
	return ToolResult{OK: false, Error: &ToolError{Code: code, Message: message}}
}

// Failuref builds a failed ToolResult with a formatted message.
func Failuref(code, format string, args ...any) ToolResult {
	return Failure(code, fmt.Sprintf(format, args...))
}

// Serialize renders the result as the JSON string that is appended to
// the conversation as the tool's observation. Serialization happens at
// this boundary only; internally results stay structured.
func (r ToolResult) Serialize() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"ok":false,"error":{"code":"serialize","message":"unserializable tool result"}}`
	}
	return string(b)
}

// Option is one buyable variant surfaced by a catalog search. Empty
// strings stand in for absent values; an empty CheckoutURL means the
// item cannot be auto-checked-out.
type Option struct {
	OptionIndex int      `json:"option_index"`
	Title       string   `json:"title"`
	Price       string   `json:"price,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Seller      string   `json:"seller,omitempty"`
	Bullets     []string `json:"bullets,omitempty"`
	ProductURL  string   `json:"product_url,omitempty"`
	CheckoutURL string   `json:"checkout_url,omitempty"`
}

// PlannedCall is one entry of a Plan.
type PlannedCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Plan is the bounded, schema-valid list of tool calls produced by the
// planning pass for one user turn. Rationale is diagnostic only.
type Plan struct {
	Calls     []PlannedCall `json:"tool_calls"`
	Rationale string        `json:"rationale,omitempty"`
}

// TurnResult is what one user turn hands back to the front end.
type TurnResult struct {
	Reply        string   `json:"reply"`
	Options      []Option `json:"options,omitempty"`
	AutoCheckout bool     `json:"auto_checkout,omitempty"`
}
