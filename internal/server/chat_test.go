package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/core"
	"github.com/cartpilot/cartpilot/internal/agent/telemetry"
	"github.com/cartpilot/cartpilot/internal/convstore"
)

// scriptedProvider answers every classifier call with a no-intent /
// no-plan verdict and every chat call with a fixed reply.
type scriptedProvider struct {
	reply   string
	chatErr error
}

func (p *scriptedProvider) Generate(_ context.Context, prompt, _ string, _ map[string]any) (string, error) {
	if strings.Contains(prompt, "buy_intent") {
		return `{"buy_intent": false, "confidence": 0.9}`, nil
	}
	return `{"tool_calls":[]}`, nil
}

func (p *scriptedProvider) ChatWithTools(context.Context, []core.Message, []core.ToolSpec, string, map[string]any) (core.ChatResponse, error) {
	if p.chatErr != nil {
		return core.ChatResponse{}, p.chatErr
	}
	return core.ChatResponse{Content: p.reply}, nil
}

type noopRunner struct{}

func (noopRunner) Has(string) bool        { return false }
func (noopRunner) Specs() []core.ToolSpec { return nil }
func (noopRunner) Dispatch(context.Context, string, map[string]any, *core.Session) core.ToolResult {
	return core.Failure("unknown_tool", "no tools in this test")
}

func testChatHandler(provider core.LLMProvider) (*ChatHandler, convstore.Store) {
	cfg := &config.Config{
		LLM:   config.LLMConfig{Routing: config.LLMRoutingConfig{Chatting: "chat", Classifier: "cls"}},
		Agent: config.AgentConfig{MaxLoopSteps: 6, MaxPlannedCalls: 3, BuyIntentThreshold: 0.4},
	}
	store := convstore.NewInMemoryStore(time.Hour)
	orch := core.NewOrchestrator(cfg, provider, noopRunner{}, telemetry.New())
	return &ChatHandler{Store: store, Orchestrator: orch}, store
}

func postChat(t *testing.T, h *ChatHandler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h.chat(c)
}

func TestChatHandlerRoundTrip(t *testing.T) {
	h, _ := testChatHandler(&scriptedProvider{reply: "Hello, shopper."})

	rec, err := postChat(t, h, `{"message":"hi"}`)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ConversationID == "" {
		t.Fatal("no conversation id assigned")
	}
	if resp.Reply != "Hello, shopper." {
		t.Fatalf("reply = %q", resp.Reply)
	}

	// Second turn on the same conversation keeps the id and accrues
	// history.
	rec2, err := postChat(t, h, `{"conversation_id":"`+resp.ConversationID+`","message":"more"}`)
	if err != nil {
		t.Fatal(err)
	}
	var resp2 chatResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp2); err != nil {
		t.Fatal(err)
	}
	if resp2.ConversationID != resp.ConversationID {
		t.Fatalf("id changed: %q != %q", resp2.ConversationID, resp.ConversationID)
	}

	conv, _, err := h.Store.Ensure(context.Background(), resp.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.History) != 4 {
		t.Fatalf("history length = %d", len(conv.History))
	}
}

func TestChatHandlerRejectsEmptyMessage(t *testing.T) {
	h, _ := testChatHandler(&scriptedProvider{reply: "x"})
	for _, body := range []string{`{"message":""}`, `{"message":"   "}`, `{}`} {
		_, err := postChat(t, h, body)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Errorf("body %s: err = %v", body, err)
		}
	}
}

func TestChatHandlerModelFailureIsBadGateway(t *testing.T) {
	h, _ := testChatHandler(&scriptedProvider{chatErr: context.DeadlineExceeded})
	_, err := postChat(t, h, `{"message":"hi"}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
}

func TestChatHandlerTrimsHistory(t *testing.T) {
	h, store := testChatHandler(&scriptedProvider{reply: "ok"})

	conv, id, err := store.Ensure(context.Background(), "long")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < historyLimit; i++ {
		conv.History = append(conv.History, core.Message{Role: core.RoleUser, Content: "filler"})
	}
	if err := store.Save(context.Background(), id, conv); err != nil {
		t.Fatal(err)
	}

	if _, err := postChat(t, h, `{"conversation_id":"long","message":"hi"}`); err != nil {
		t.Fatal(err)
	}
	after, _, err := store.Ensure(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.History) != historyLimit {
		t.Fatalf("history length = %d, want %d", len(after.History), historyLimit)
	}
}
