package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cartpilot/cartpilot/internal/agent/core"
	"github.com/cartpilot/cartpilot/internal/convstore"
)

// historyLimit caps the transcript replayed into each turn. Old
// messages fall off the front; the session carries the durable state.
const historyLimit = 40

// ChatHandler exposes the per-turn entry point over HTTP.
type ChatHandler struct {
	Store        convstore.Store
	Orchestrator *core.Orchestrator
}

// Register mounts the chat endpoint under the provided group.
func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID string        `json:"conversation_id"`
	Reply          string        `json:"reply"`
	Options        []core.Option `json:"options,omitempty"`
	AutoCheckout   bool          `json:"auto_checkout,omitempty"`
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()
	conv, id, err := h.Store.Ensure(ctx, req.ConversationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "conversation store unavailable")
	}

	result, err := h.Orchestrator.HandleTurn(ctx, conv.Session, req.Message, conv.History)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "model backend unavailable")
	}

	conv.History = append(conv.History,
		core.Message{Role: core.RoleUser, Content: req.Message},
		core.Message{Role: core.RoleAssistant, Content: result.Reply},
	)
	if len(conv.History) > historyLimit {
		conv.History = conv.History[len(conv.History)-historyLimit:]
	}
	if err := h.Store.Save(ctx, id, conv); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to persist conversation")
	}

	return c.JSON(http.StatusOK, chatResponse{
		ConversationID: id,
		Reply:          result.Reply,
		Options:        result.Options,
		AutoCheckout:   result.AutoCheckout,
	})
}
