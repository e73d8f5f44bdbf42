package core

import (
	"context"
	"sync"

	"github.com/cartpilot/cartpilot/config"
)

// testConfig returns a config with the documented defaults, suitable
// for exercising the core without touching viper.
func testConfig() *config.Config {
	return &config.Config{
		General: config.GeneralConfig{Debug: false},
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{Chatting: "chat-model", Classifier: "classifier-model"},
		},
		Agent: config.AgentConfig{
			MaxLoopSteps:       6,
			MaxPlannedCalls:    3,
			BuyIntentThreshold: 0.4,
			OptionSummaryCap:   8,
			AutoOpenLinkCap:    2,
		},
	}
}

// stubProvider scripts the LLM. Generate consumes generateReplies in
// order (repeating the last one); chat delegates to the chat func.
type stubProvider struct {
	mu              sync.Mutex
	generateReplies []string
	generateErr     error
	generatePrompts []string
	chat            func(messages []Message, tools []ToolSpec) (ChatResponse, error)
}

func (s *stubProvider) Generate(_ context.Context, prompt, _ string, _ map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generatePrompts = append(s.generatePrompts, prompt)
	if s.generateErr != nil {
		return "", s.generateErr
	}
	if len(s.generateReplies) == 0 {
		return "", nil
	}
	reply := s.generateReplies[0]
	if len(s.generateReplies) > 1 {
		s.generateReplies = s.generateReplies[1:]
	}
	return reply, nil
}

func (s *stubProvider) ChatWithTools(_ context.Context, messages []Message, tools []ToolSpec, _ string, _ map[string]any) (ChatResponse, error) {
	if s.chat == nil {
		return ChatResponse{Content: "done"}, nil
	}
	return s.chat(messages, tools)
}

// dispatchRecord captures one stubRunner dispatch.
type dispatchRecord struct {
	Name string
	Args map[string]any
}

// stubRunner is a scriptable ToolRunner.
type stubRunner struct {
	names    []string
	dispatch func(name string, args map[string]any, sess *Session) ToolResult

	mu    sync.Mutex
	calls []dispatchRecord
}

func (r *stubRunner) Has(name string) bool {
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

func (r *stubRunner) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.names))
	for _, n := range r.names {
		specs = append(specs, ToolSpec{Name: n})
	}
	return specs
}

func (r *stubRunner) Dispatch(_ context.Context, name string, args map[string]any, sess *Session) ToolResult {
	r.mu.Lock()
	r.calls = append(r.calls, dispatchRecord{Name: name, Args: args})
	r.mu.Unlock()
	if r.dispatch == nil {
		return Success(map[string]any{})
	}
	return r.dispatch(name, args, sess)
}

func (r *stubRunner) recorded() []dispatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dispatchRecord, len(r.calls))
	copy(out, r.calls)
	return out
}

func allTools() []string {
	return []string{ToolShopifySearch, ToolWebSearch, ToolWebFetch, ToolCheckoutAdjust, ToolBrowserOpen}
}

// sessionWithOptions builds a session holding a two-option result.
func sessionWithOptions() *Session {
	sess := NewSession("test")
	sess.LastShipsTo = "US"
	sess.LastOptions = []Option{
		{OptionIndex: 1, Title: "Espresso Cup", Price: "12.00", Currency: "USD", Seller: "cups.example.com",
			ProductURL: "https://cups.example.com/p/espresso", CheckoutURL: "https://cups.example.com/cart/111:1"},
		{OptionIndex: 2, Title: "Latte Mug", Price: "18.50", Currency: "USD", Seller: "mugs.example.com",
			ProductURL: "https://mugs.example.com/p/latte", CheckoutURL: "https://mugs.example.com/cart/222:1"},
	}
	return sess
}
