package observability

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Counters
	investigationsTotal  metric.Int64Counter
	toolRoundsTotal      metric.Int64Counter
	toolExecutionsTotal  metric.Int64Counter
	paginationProbes     metric.Int64Counter
	limitStopsTotal      metric.Int64Counter
	llmRequestsTotal     metric.Int64Counter
	llmTokensUsedTotal   metric.Int64Counter
	queryParseFallbacks  metric.Int64Counter

	// Histograms
	investigationDuration metric.Float64Histogram
	toolExecutionDuration metric.Float64Histogram
	llmRequestDuration    metric.Float64Histogram
	toolsPerInvestigation metric.Int64Histogram

	// Gauges (using async instruments)
	activeInvestigations metric.Int64ObservableGauge

	activeInvestigationCount atomic.Int64
}

// NewMetrics creates and initializes all metrics
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{
		meter: meter,
	}

	var err error

	m.investigationsTotal, err = meter.Int64Counter(
		"investigations_total",
		metric.WithDescription("Total number of investigations started"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.toolRoundsTotal, err = meter.Int64Counter(
		"tool_rounds_total",
		metric.WithDescription("Total number of tool rounds executed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.toolExecutionsTotal, err = meter.Int64Counter(
		"tool_executions_total",
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.paginationProbes, err = meter.Int64Counter(
		"pagination_probes_total",
		metric.WithDescription("Total number of pagination probe re-queries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.limitStopsTotal, err = meter.Int64Counter(
		"limit_stops_total",
		metric.WithDescription("Total number of investigations stopped by resource limits"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.llmRequestsTotal, err = meter.Int64Counter(
		"llm_requests_total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.llmTokensUsedTotal, err = meter.Int64Counter(
		"llm_tokens_used_total",
		metric.WithDescription("Total number of LLM tokens used"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.queryParseFallbacks, err = meter.Int64Counter(
		"query_parse_fallbacks_total",
		metric.WithDescription("Total number of query parses served by the pattern fallback"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.investigationDuration, err = meter.Float64Histogram(
		"investigation_duration_seconds",
		metric.WithDescription("Duration of investigations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.toolExecutionDuration, err = meter.Float64Histogram(
		"tool_execution_duration_seconds",
		metric.WithDescription("Duration of tool executions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.llmRequestDuration, err = meter.Float64Histogram(
		"llm_request_duration_seconds",
		metric.WithDescription("Duration of LLM requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.toolsPerInvestigation, err = meter.Int64Histogram(
		"tools_per_investigation",
		metric.WithDescription("Number of tool executions per completed investigation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.activeInvestigations, err = meter.Int64ObservableGauge(
		"active_investigations",
		metric.WithDescription("Number of investigations currently running"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.activeInvestigationCount.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordInvestigationStart records a new investigation
func (m *Metrics) RecordInvestigationStart(ctx context.Context, questionType string) {
	m.investigationsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("question_type", questionType),
		),
	)
	m.activeInvestigationCount.Add(1)
}

// RecordInvestigationComplete records completion of an investigation
func (m *Metrics) RecordInvestigationComplete(ctx context.Context, duration time.Duration, status string, toolsUsed int) {
	m.investigationDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
	m.toolsPerInvestigation.Record(ctx, int64(toolsUsed),
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
	if status == "limit_stopped" {
		m.limitStopsTotal.Add(ctx, 1)
	}
	m.activeInvestigationCount.Add(-1)
}

// RecordToolRound records one completed tool round
func (m *Metrics) RecordToolRound(ctx context.Context, phase string) {
	m.toolRoundsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("phase", phase),
		),
	)
}

// RecordToolExecution records a tool execution
func (m *Metrics) RecordToolExecution(ctx context.Context, toolName string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	m.toolExecutionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", toolName),
			attribute.String("status", status),
		),
	)

	m.toolExecutionDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("tool", toolName),
			attribute.String("status", status),
		),
	)
}

// RecordPaginationProbe records one pagination probe re-query
func (m *Metrics) RecordPaginationProbe(ctx context.Context, toolName string) {
	m.paginationProbes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", toolName),
		),
	)
}

// RecordLLMRequest records an LLM request
func (m *Metrics) RecordLLMRequest(ctx context.Context, model string, promptTokens, completionTokens int64, duration time.Duration) {
	m.llmRequestsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
		),
	)

	m.llmTokensUsedTotal.Add(ctx, promptTokens+completionTokens,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("type", "total"),
		),
	)

	m.llmRequestDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("model", model),
		),
	)
}

// RecordQueryParseFallback records a query parse that used the pattern fallback
func (m *Metrics) RecordQueryParseFallback(ctx context.Context) {
	m.queryParseFallbacks.Add(ctx, 1)
}

// GetActiveInvestigationCount returns the current number of running investigations
func (m *Metrics) GetActiveInvestigationCount() int64 {
	return m.activeInvestigationCount.Load()
}
