package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/core"
)

var (
	ErrDuplicateTool = errors.New("tool already registered")
	ErrEmptyToolName = errors.New("tool name is empty")
	ErrNilExecutor   = errors.New("tool executor is nil")
)

// RunContext is the shared context every executor receives: the
// conversation's session, the process configuration and a debug logger.
type RunContext struct {
	Session *core.Session
	Config  *config.Config
	Debug   bool
	Logger  *log.Logger
}

// Tool bundles everything the registry knows about one tool. The
// description is consumed only by the LLM prompt, never by logic.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Validate    func(args map[string]any) error
	Execute     func(ctx context.Context, args map[string]any, rc *RunContext) core.ToolResult
}

// Registry maps tool identifiers to validators and executors,
// preserving registration order. It implements core.ToolRunner.
type Registry struct {
	cfg    *config.Config
	logger *log.Logger

	mu    sync.RWMutex
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[TOOLS] ", log.LstdFlags),
		tools:  make(map[string]*Tool),
	}
}

// Register adds a tool. Registering a duplicate name is a programmer
// error, not a runtime condition, and fails loudly.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return ErrEmptyToolName
	}
	if t.Execute == nil {
		return fmt.Errorf("%w: %q", ErrNilExecutor, t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Specs renders the model-facing tool definitions in registration
// order.
func (r *Registry) Specs() []core.ToolSpec {
	specs := make([]core.ToolSpec, 0, len(r.order))
	for _, t := range r.List() {
		specs = append(specs, core.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return specs
}

// Dispatch resolves, validates and executes one call. Every failure
// mode (unknown tool, bad arguments, executor error, even an executor
// panic) is reduced to a failure ToolResult; nothing raises past this
// boundary.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any, sess *core.Session) (result core.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = core.Failuref("tool_panic", "tool %s panicked: %v", name, rec)
		}
	}()

	t, ok := r.Get(name)
	if !ok {
		return core.Failuref("unknown_tool", "tool %q is not registered", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if t.Validate != nil {
		if err := t.Validate(args); err != nil {
			return core.Failuref("invalid_arguments", "invalid arguments for %s: %v", name, err)
		}
	}

	rc := &RunContext{
		Session: sess,
		Config:  r.cfg,
		Debug:   r.cfg.General.Debug,
		Logger:  r.logger,
	}
	return t.Execute(ctx, args, rc)
}
