package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lockwise/support-agent/pkg/domain"
	"github.com/lockwise/support-agent/pkg/observability"
)

// ErrToolTimeout marks a collaborator call that exceeded its per-call
// timeout. Callers see the same error-payload shape as any other tool
// failure; the sentinel exists so logs can attribute the cause.
var ErrToolTimeout = errors.New("tool timed out")

// OrchestratorOptions tunes one orchestrator instance.
type OrchestratorOptions struct {
	ToolTimeout       time.Duration
	DefaultQueryLimit int
	MaxQueryLimit     int
	Metrics           *observability.Metrics
	Telemetry         *observability.Telemetry
}

// Orchestrator dispatches tool calls to their handlers, probes list results
// for pagination, and caches raw results keyed by tool name so later calls
// can be reconciled against what was actually observed. One orchestrator
// serves exactly one investigation.
type Orchestrator struct {
	registry *Registry
	cache    map[string]map[string]any
	logger   *observability.StructuredLogger
	opts     OrchestratorOptions
}

// NewOrchestrator returns an orchestrator for one investigation.
func NewOrchestrator(registry *Registry, logger *observability.StructuredLogger, opts OrchestratorOptions) *Orchestrator {
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = 30 * time.Second
	}
	if opts.DefaultQueryLimit <= 0 {
		opts.DefaultQueryLimit = 10
	}
	if opts.MaxQueryLimit < opts.DefaultQueryLimit {
		opts.MaxQueryLimit = 100
	}
	return &Orchestrator{
		registry: registry,
		cache:    make(map[string]map[string]any),
		logger:   logger.WithComponent("orchestrator"),
		opts:     opts,
	}
}

// Registry returns the dispatch table this orchestrator serves.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// CachedResult returns the raw result of a previously executed tool.
func (o *Orchestrator) CachedResult(toolName string) (map[string]any, bool) {
	raw, ok := o.cache[toolName]
	return raw, ok
}

// Execute runs one tool call and returns its raw payload. All failures are
// converted to {"error": msg} payloads at this boundary; Execute never
// returns an error to the caller.
func (o *Orchestrator) Execute(ctx context.Context, call domain.ToolCall) map[string]any {
	handler, err := o.registry.Get(call.Name)
	if err != nil {
		return errorResult(fmt.Sprintf("unknown tool: %s", call.Name))
	}

	args := copyArgs(call.Args)
	if msg := validateArgs(handler.Definition.InputSchema, args); msg != "" {
		return errorResult(msg)
	}

	if call.Name == domain.ToolAdminLinks {
		args = o.ReconcileContext(args)
	}

	limit := 0
	if handler.ListKey != "" {
		limit = o.normalizeLimit(intArg(args, "limit"))
		args["limit"] = limit
	}

	start := time.Now()
	raw, err := o.runWithTimeout(ctx, handler, args)
	duration := time.Since(start)

	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordToolExecution(ctx, call.Name, duration, err == nil)
	}

	if err != nil {
		cause := "execution_failure"
		if errors.Is(err, context.DeadlineExceeded) {
			cause = "timeout"
			err = fmt.Errorf("%w after %s", ErrToolTimeout, o.opts.ToolTimeout)
		}
		o.logger.Warn(ctx, "tool execution failed", map[string]any{
			"tool":        call.Name,
			"cause":       cause,
			"error":       err.Error(),
			"duration_ms": duration.Milliseconds(),
		})
		return errorResult(err.Error())
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if handler.ListKey != "" {
		o.attachPagination(ctx, handler, args, raw, limit)
	}

	o.cache[call.Name] = raw

	o.logger.Debug(ctx, "tool executed", map[string]any{
		"tool":        call.Name,
		"duration_ms": duration.Milliseconds(),
	})
	return raw
}

// runWithTimeout bounds a single handler call, instrumented when telemetry
// is wired.
func (o *Orchestrator) runWithTimeout(ctx context.Context, handler Handler, args map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ToolTimeout)
	defer cancel()

	if o.opts.Telemetry == nil {
		return handler.Execute(ctx, args)
	}

	var raw map[string]any
	err := o.opts.Telemetry.InstrumentToolExecution(ctx, handler.Definition.Name, func(ctx context.Context) error {
		var execErr error
		raw, execErr = handler.Execute(ctx, args)
		return execErr
	})
	return raw, err
}

// attachPagination probes for one more record than requested to decide
// has_more, instead of trusting the backend to self-report truncation.
func (o *Orchestrator) attachPagination(ctx context.Context, handler Handler, args map[string]any, raw map[string]any, limit int) {
	count := len(recordsOf(raw, handler.ListKey))

	page := map[string]any{
		"current_count": count,
		"has_more":      false,
	}

	if count >= limit && limit < o.opts.MaxQueryLimit {
		probeArgs := copyArgs(args)
		probeArgs["limit"] = limit + 1

		if o.opts.Metrics != nil {
			o.opts.Metrics.RecordPaginationProbe(ctx, handler.Definition.Name)
		}

		probeRaw, err := o.runWithTimeout(ctx, handler, probeArgs)
		if err == nil && len(recordsOf(probeRaw, handler.ListKey)) > limit {
			page["has_more"] = true
			page["suggested_next_limit"] = o.normalizeLimit(limit * 2)
		}
	}

	raw["pagination"] = page
}

// ReconcileContext merges caller-asserted context fields with the cache of
// actually-observed tool results. Observed values always win; the caller's
// values are only a fallback default. This guards admin-link generation
// against fabricated identifiers.
func (o *Orchestrator) ReconcileContext(asserted map[string]any) map[string]any {
	merged := copyArgs(asserted)

	if device, ok := o.cache[domain.ToolDeviceInfo]; ok {
		if id, ok := device["device_id"].(string); ok && id != "" {
			merged["device_id"] = id
		}
		if id, ok := device["workspace_id"].(string); ok && id != "" {
			merged["workspace_id"] = id
		}
	}

	if raw, ok := o.cache[domain.ToolAccessCodes]; ok {
		if ids := observedIDs(raw, "access_codes", "access_code_id"); ids != nil {
			merged["access_codes"] = ids
		}
	}
	if raw, ok := o.cache[domain.ToolActionAttempts]; ok {
		if ids := observedIDs(raw, "action_attempts", "action_attempt_id"); ids != nil {
			merged["action_attempts"] = ids
		}
	}

	return merged
}

// Summarize renders a raw payload through the tool's registered summarizer.
func (o *Orchestrator) Summarize(toolName string, raw map[string]any) string {
	if msg, found := raw["error"]; found {
		return fmt.Sprintf("Tool %s failed: %v", toolName, msg)
	}
	handler, err := o.registry.Get(toolName)
	if err != nil || handler.Summarize == nil {
		return fmt.Sprintf("Tool %s returned %d fields", toolName, len(raw))
	}
	return handler.Summarize(raw)
}

func (o *Orchestrator) normalizeLimit(limit int) int {
	if limit <= 0 {
		return o.opts.DefaultQueryLimit
	}
	if limit > o.opts.MaxQueryLimit {
		return o.opts.MaxQueryLimit
	}
	return limit
}

// validateArgs checks schema-required fields before dispatch. The schema's
// required list is authoritative.
func validateArgs(schema domain.ToolSchema, args map[string]any) string {
	for _, required := range schema.Required {
		value, present := args[required]
		if !present || value == nil || value == "" {
			return fmt.Sprintf("missing required argument: %s", required)
		}
	}
	return ""
}

func errorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

func copyArgs(args map[string]any) map[string]any {
	copied := make(map[string]any, len(args))
	for key, value := range args {
		copied[key] = value
	}
	return copied
}

// observedIDs extracts the identifier list from a cached list payload.
func observedIDs(raw map[string]any, listKey, idKey string) []any {
	records := recordsOf(raw, listKey)
	if len(records) == 0 {
		return nil
	}
	ids := make([]any, 0, len(records))
	for _, record := range records {
		if id, ok := record[idKey].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}
