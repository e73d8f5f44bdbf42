package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/cartpilot/cartpilot/config"
	"github.com/cartpilot/cartpilot/internal/agent/core"
)

func testConfig() *config.Config {
	return &config.Config{}
}

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: name,
		Execute: func(_ context.Context, args map[string]any, _ *RunContext) core.ToolResult {
			return core.Success(args)
		},
	}
}

func TestRegisterRejectsDuplicatesAndBadTools(t *testing.T) {
	r := NewRegistry(testConfig())
	if err := r.Register(echoTool("alpha")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(echoTool("alpha")); !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("duplicate registration: %v", err)
	}
	if err := r.Register(&Tool{Name: ""}); !errors.Is(err, ErrEmptyToolName) {
		t.Fatalf("empty name: %v", err)
	}
	if err := r.Register(nil); !errors.Is(err, ErrEmptyToolName) {
		t.Fatalf("nil tool: %v", err)
	}
	if err := r.Register(&Tool{Name: "beta"}); !errors.Is(err, ErrNilExecutor) {
		t.Fatalf("nil executor: %v", err)
	}
}

func TestListAndSpecsPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry(testConfig())
	names := []string{"gamma", "alpha", "beta"}
	for _, n := range names {
		if err := r.Register(echoTool(n)); err != nil {
			t.Fatal(err)
		}
	}
	specs := r.Specs()
	if len(specs) != 3 {
		t.Fatalf("got %d specs", len(specs))
	}
	for i, n := range names {
		if specs[i].Name != n {
			t.Fatalf("specs[%d] = %q, want %q", i, specs[i].Name, n)
		}
	}
	if !r.Has("alpha") || r.Has("delta") {
		t.Fatal("Has is wrong")
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry(testConfig())
	res := r.Dispatch(context.Background(), "ghost", nil, core.NewSession("t"))
	if res.OK || res.Error == nil || res.Error.Code != "unknown_tool" {
		t.Fatalf("result = %+v", res)
	}
}

func TestDispatchValidationFailure(t *testing.T) {
	r := NewRegistry(testConfig())
	tool := echoTool("picky")
	tool.Validate = func(args map[string]any) error { return requireString(args, "query") }
	if err := r.Register(tool); err != nil {
		t.Fatal(err)
	}
	res := r.Dispatch(context.Background(), "picky", map[string]any{}, core.NewSession("t"))
	if res.OK || res.Error.Code != "invalid_arguments" {
		t.Fatalf("result = %+v", res)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	r := NewRegistry(testConfig())
	err := r.Register(&Tool{
		Name: "bomb",
		Execute: func(context.Context, map[string]any, *RunContext) core.ToolResult {
			panic("kaboom")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	res := r.Dispatch(context.Background(), "bomb", nil, core.NewSession("t"))
	if res.OK || res.Error.Code != "tool_panic" {
		t.Fatalf("panic escaped the boundary: %+v", res)
	}
}

func TestDispatchNilArgs(t *testing.T) {
	r := NewRegistry(testConfig())
	var got map[string]any
	err := r.Register(&Tool{
		Name: "probe",
		Execute: func(_ context.Context, args map[string]any, _ *RunContext) core.ToolResult {
			got = args
			return core.Success(nil)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res := r.Dispatch(context.Background(), "probe", nil, core.NewSession("t")); !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if got == nil {
		t.Fatal("executor saw nil args")
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"s":      "  hi  ",
		"f":      3.0,
		"frac":   2.5,
		"numstr": " 7 ",
		"junk":   "abc",
	}
	if got := stringArg(args, "s"); got != "hi" {
		t.Fatalf("stringArg = %q", got)
	}
	if got := intArg(args, "f", 0); got != 3 {
		t.Fatalf("intArg(float) = %d", got)
	}
	if got := intArg(args, "numstr", 0); got != 7 {
		t.Fatalf("intArg(string) = %d", got)
	}
	if got := intArg(args, "junk", 9); got != 9 {
		t.Fatalf("intArg(junk) = %d", got)
	}
	if got := intArg(args, "missing", 4); got != 4 {
		t.Fatalf("intArg(missing) = %d", got)
	}
	if v, ok := floatArg(args, "frac"); !ok || v != 2.5 {
		t.Fatalf("floatArg = %v, %v", v, ok)
	}
	if _, ok := floatArg(args, "s"); ok {
		t.Fatal("floatArg accepted a string")
	}
	if err := requireString(args, "s"); err != nil {
		t.Fatal(err)
	}
	if err := requireString(args, "missing"); err == nil {
		t.Fatal("missing key accepted")
	}
	if err := requireString(map[string]any{"s": "   "}, "s"); err == nil {
		t.Fatal("blank string accepted")
	}
}
