package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/core"
	"github.com/cartpilot/cartpilot/internal/agent/telemetry"
	"github.com/cartpilot/cartpilot/internal/convstore"
	"github.com/cartpilot/cartpilot/internal/tools"
	openai "github.com/cartpilot/cartpilot/provider/openai"
)

// Run starts the HTTP front end: the chat API plus health and metrics
// endpoints.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	provider, err := openai.New(cfg.LLM)
	if err != nil {
		return err
	}
	registry, err := tools.DefaultRegistry(cfg)
	if err != nil {
		return err
	}
	store, err := convstore.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	tele := telemetry.New()
	orch := core.NewOrchestrator(cfg, provider, registry, tele)

	api := e.Group("/api")
	if cfg.Server.JWTSecret != "" {
		api.Use(AuthMiddleware([]byte(cfg.Server.JWTSecret)))
	}

	chat := &ChatHandler{Store: store, Orchestrator: orch}
	chat.Register(api)

	ops := &OpsHandler{Telemetry: tele}
	ops.Register(api.Group("/ops"))

	return e.Start(cfg.Server.Address)
}
