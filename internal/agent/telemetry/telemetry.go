package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors are package-level: every Telemetry instance
// feeds the same series, and the process exposes them on /metrics.
var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartpilot_turns_total",
		Help: "User turns processed, by outcome.",
	}, []string{"outcome"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cartpilot_turn_duration_seconds",
		Help:    "Wall time per user turn.",
		Buckets: prometheus.DefBuckets,
	})

	planOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartpilot_plan_outcomes_total",
		Help: "Planning pass outcomes, by repair stage that produced a plan.",
	}, []string{"stage"})

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartpilot_tool_calls_total",
		Help: "Tool invocations, by tool and result.",
	}, []string{"tool", "result"})

	autoCheckouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartpilot_auto_checkouts_total",
		Help: "Auto-checkout attempts, by result.",
	}, []string{"result"})

	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartpilot_llm_tokens_total",
		Help: "LLM tokens consumed, by model and direction.",
	}, []string{"model", "direction"})
)

// Telemetry tracks turn, planning, tool and LLM usage counters. The
// in-memory copies back the Summary endpoint; Prometheus gets the same
// numbers as series.
type Telemetry struct {
	mu sync.RWMutex

	totalTurns      int64
	failedTurns     int64
	autoCheckouts   int64
	planOutcomes    map[string]int64
	toolCalls       map[string]int64
	toolFailures    map[string]int64
	llmPromptTokens map[string]int64
	llmOutputTokens map[string]int64
}

// New creates a telemetry instance.
func New() *Telemetry {
	return &Telemetry{
		planOutcomes:    make(map[string]int64),
		toolCalls:       make(map[string]int64),
		toolFailures:    make(map[string]int64),
		llmPromptTokens: make(map[string]int64),
		llmOutputTokens: make(map[string]int64),
	}
}

// RecordTurn records one completed user turn.
func (t *Telemetry) RecordTurn(d time.Duration, success bool) {
	if t == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(d.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalTurns++
	if !success {
		t.failedTurns++
	}
}

// RecordPlanOutcome records which stage of the repair ladder produced a
// plan ("parsed", "reprompt", "repair_pass") or that planning degraded
// ("failed", "provider_error").
func (t *Telemetry) RecordPlanOutcome(stage string) {
	if t == nil {
		return
	}
	planOutcomes.WithLabelValues(stage).Inc()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.planOutcomes[stage]++
}

// RecordToolCall records one tool invocation.
func (t *Telemetry) RecordToolCall(tool string, ok bool) {
	if t == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	toolCalls.WithLabelValues(tool, result).Inc()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toolCalls[tool]++
	if !ok {
		t.toolFailures[tool]++
	}
}

// RecordAutoCheckout records an auto-checkout attempt.
func (t *Telemetry) RecordAutoCheckout(success bool) {
	if t == nil {
		return
	}
	result := "ok"
	if !success {
		result = "skipped"
	}
	autoCheckouts.WithLabelValues(result).Inc()
	if success {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.autoCheckouts++
	}
}

// RecordLLMUsage records token consumption for one model call.
func (t *Telemetry) RecordLLMUsage(model string, promptTokens, completionTokens int64) {
	if t == nil {
		return
	}
	llmTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	llmTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.llmPromptTokens[model] += promptTokens
	t.llmOutputTokens[model] += completionTokens
}

// Summary returns a snapshot of all counters for the ops endpoint.
func (t *Telemetry) Summary() map[string]any {
	if t == nil {
		return map[string]any{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	plans := make(map[string]int64, len(t.planOutcomes))
	for k, v := range t.planOutcomes {
		plans[k] = v
	}
	tools := make(map[string]int64, len(t.toolCalls))
	for k, v := range t.toolCalls {
		tools[k] = v
	}
	toolErrs := make(map[string]int64, len(t.toolFailures))
	for k, v := range t.toolFailures {
		toolErrs[k] = v
	}
	prompt := make(map[string]int64, len(t.llmPromptTokens))
	for k, v := range t.llmPromptTokens {
		prompt[k] = v
	}
	completion := make(map[string]int64, len(t.llmOutputTokens))
	for k, v := range t.llmOutputTokens {
		completion[k] = v
	}

	return map[string]any{
		"total_turns":           t.totalTurns,
		"failed_turns":          t.failedTurns,
		"auto_checkouts":        t.autoCheckouts,
		"plan_outcomes":         plans,
		"tool_calls":            tools,
		"tool_failures":         toolErrs,
		"llm_prompt_tokens":     prompt,
		"llm_completion_tokens": completion,
	}
}
