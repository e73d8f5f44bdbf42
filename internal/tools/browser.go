package tools

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/cartpilot/cartpilot/internal/agent/core"
)

// NewBrowserOpenTool builds the browser-open tool. Opening is
// fire-and-forget: the command is started and never waited on.
func NewBrowserOpenTool() *Tool {
	return &Tool{
		Name:        core.ToolBrowserOpen,
		Description: "Open a URL in the user's browser. Use for checkout pages and when the user asks to open a link.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "URL to open"},
			},
			"required": []string{"url"},
		},
		Validate: func(args map[string]any) error {
			rawURL := stringArg(args, "url")
			if rawURL == "" {
				return fmt.Errorf("url is required")
			}
			u, err := url.Parse(rawURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return fmt.Errorf("url must be an absolute http(s) URL")
			}
			return nil
		},
		Execute: executeBrowserOpen,
	}
}

// openCommand is swapped out in tests.
var openCommand = defaultOpenCommand

func defaultOpenCommand(rawURL string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", rawURL)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		return exec.Command("xdg-open", rawURL)
	}
}

func executeBrowserOpen(ctx context.Context, args map[string]any, rc *RunContext) core.ToolResult {
	rawURL := stringArg(args, "url")

	cmd := openCommand(rawURL)
	if err := cmd.Start(); err != nil {
		return core.Failuref("launch", "failed to open browser for %s: %v", rawURL, err)
	}
	// Detach; the browser process outlives the call.
	go func() { _ = cmd.Wait() }()

	if rc.Debug {
		rc.Logger.Printf("opened %s", rawURL)
	}
	return core.Success(map[string]any{"opened": rawURL})
}
