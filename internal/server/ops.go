package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartpilot/cartpilot/internal/agent/telemetry"
)

// OpsHandler exposes operational summaries.
type OpsHandler struct {
	Telemetry *telemetry.Telemetry
}

// Register mounts ops endpoints under the provided group.
func (h *OpsHandler) Register(g *echo.Group) {
	g.GET("/summary", h.summary)
}

func (h *OpsHandler) summary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Telemetry.Summary())
}
