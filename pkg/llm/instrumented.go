package llm

import (
	"context"
	"time"

	"github.com/lockwise/support-agent/pkg/domain"
	"github.com/lockwise/support-agent/pkg/observability"
)

// InstrumentedClient decorates an LLMClient with tracing, metrics, and
// structured logging. It implements domain.LLMClient itself so callers wire
// it in place of the raw client.
type InstrumentedClient struct {
	inner     domain.LLMClient
	model     string
	telemetry *observability.Telemetry
	metrics   *observability.Metrics
	logger    *observability.StructuredLogger
}

// NewInstrumentedClient wraps a client with observability. Telemetry and
// metrics may be nil; the corresponding signal is then skipped.
func NewInstrumentedClient(inner domain.LLMClient, model string, telemetry *observability.Telemetry, metrics *observability.Metrics, logger *observability.StructuredLogger) *InstrumentedClient {
	return &InstrumentedClient{
		inner:     inner,
		model:     model,
		telemetry: telemetry,
		metrics:   metrics,
		logger:    logger.WithComponent("llm"),
	}
}

// Complete runs the wrapped turn inside an llm.chat span and records token
// usage.
func (c *InstrumentedClient) Complete(ctx context.Context, messages []domain.Message, tools []domain.ToolDefinition, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}

	var resp *domain.ChatResponse
	start := time.Now()

	call := func(ctx context.Context) (int, int, error) {
		var err error
		resp, err = c.inner.Complete(ctx, messages, tools, opts)
		if err != nil {
			return 0, 0, err
		}
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
	}

	var err error
	if c.telemetry != nil {
		err = c.telemetry.InstrumentLLMCall(ctx, model, call)
	} else {
		_, _, err = call(ctx)
	}

	duration := time.Since(start)
	if err != nil {
		c.logger.Error(ctx, "llm request failed", err, map[string]any{
			"model":       model,
			"duration_ms": duration.Milliseconds(),
		})
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordLLMRequest(ctx, model,
			int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), duration)
	}

	c.logger.Debug(ctx, "llm request complete", map[string]any{
		"model":        model,
		"tool_calls":   len(resp.ToolCalls),
		"total_tokens": resp.Usage.TotalTokens,
		"duration_ms":  duration.Milliseconds(),
	})
	return resp, nil
}

// IsHealthy delegates to the wrapped client.
func (c *InstrumentedClient) IsHealthy(ctx context.Context) bool {
	return c.inner.IsHealthy(ctx)
}
