package investigation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/lockwise/support-agent/pkg/domain"
	"github.com/lockwise/support-agent/pkg/observability"
	"github.com/lockwise/support-agent/pkg/prompts"
	"github.com/lockwise/support-agent/pkg/tools"
)

// State labels the driver's position in the investigation lifecycle.
type State string

const (
	StateNotStarted            State = "NOT_STARTED"
	StateRoundActive           State = "ROUND_ACTIVE"
	StateAwaitingFinalAnalysis State = "AWAITING_FINAL_ANALYSIS"
	StateDone                  State = "DONE"
	StateLimitStopped          State = "LIMIT_STOPPED"
	StateFailed                State = "FAILED"
)

const (
	limitStoppedNote = "Investigation stopped: resource limits reached before the analysis could complete. The findings gathered so far are preserved below."
	failedNote       = "Investigation failed due to an internal error. Please retry or escalate to engineering."
)

// DriverOptions configures one investigation driver.
type DriverOptions struct {
	Budget      BudgetConfig
	ChatOptions domain.ChatOptions
	Debug       bool
	Metrics     *observability.Metrics
	Telemetry   *observability.Telemetry
}

// Driver runs bounded multi-round tool-calling investigations. It owns the
// per-investigation state for each call to Investigate; a Driver itself is
// stateless across investigations and may be reused.
type Driver struct {
	llm      domain.LLMClient
	parser   domain.QueryParser
	registry *tools.Registry
	logger   *observability.StructuredLogger
	opts     DriverOptions
}

// NewDriver wires a driver from its collaborators.
func NewDriver(llm domain.LLMClient, parser domain.QueryParser, registry *tools.Registry, logger *observability.StructuredLogger, opts DriverOptions) *Driver {
	if opts.Budget.MaxToolRounds == 0 {
		opts.Budget = DefaultBudget()
	}
	if opts.ChatOptions.System == "" {
		opts.ChatOptions.System = prompts.System
	}
	return &Driver{
		llm:      llm,
		parser:   parser,
		registry: registry,
		logger:   logger.WithComponent("driver"),
		opts:     opts,
	}
}

// run holds the working state of one investigation.
type run struct {
	id       string
	query    string
	parsed   *domain.ParsedQuery
	state    *BudgetState
	selector *Selector
	orch     *tools.Orchestrator
	journal  *Journal
	logger   *observability.StructuredLogger
	messages []domain.Message
	machine  State
}

// Investigate runs one full investigation. It always returns a structured
// result: limit stops, timeouts, and internal failures all produce a
// readable note instead of an error.
func (d *Driver) Investigate(ctx context.Context, query string) (result *domain.InvestigationResult) {
	id := uuid.NewString()
	logger := d.logger.WithInvestigation(id)
	journal := NewJournal(id)
	start := time.Now()

	result = &domain.InvestigationResult{
		ID:            id,
		OriginalQuery: query,
	}

	r := &run{
		id:       id,
		query:    query,
		state:    NewBudgetState(d.opts.Budget),
		selector: NewSelector(logger),
		orch: tools.NewOrchestrator(d.registry, logger, tools.OrchestratorOptions{
			ToolTimeout:       d.opts.Budget.ToolTimeout,
			DefaultQueryLimit: d.opts.Budget.DefaultQueryLimit,
			MaxQueryLimit:     d.opts.Budget.MaxQueryLimit,
			Metrics:           d.opts.Metrics,
			Telemetry:         d.opts.Telemetry,
		}),
		journal: journal,
		logger:  logger,
		machine: StateNotStarted,
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.machine = StateFailed
			logger.Error(ctx, "investigation panicked", fmt.Errorf("%v", rec))
			journal.Record("failure", "panic recovered", map[string]any{"panic": fmt.Sprintf("%v", rec)})
			result.Investigation = failedNote
		}
		d.finish(ctx, r, result, start)
	}()

	ctx, cancel := context.WithTimeout(ctx, d.opts.Budget.InvestigationTimeout)
	defer cancel()

	r.parsed = d.parser.Parse(ctx, query)
	result.ParsedQuery = r.parsed
	journal.Record("parse", "query parsed", map[string]any{
		"question_type": string(r.parsed.QuestionType),
		"confidence":    r.parsed.Confidence,
	})

	if d.opts.Telemetry != nil {
		var span trace.Span
		ctx, span = d.opts.Telemetry.StartInvestigation(ctx, id, string(r.parsed.QuestionType), query)
		defer span.End()
	}

	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordInvestigationStart(ctx, string(r.parsed.QuestionType))
	}

	initialTools := r.selector.SelectInitialTools(ctx, r.parsed, query)
	journal.Record("select", "initial tools", map[string]any{"tools": initialTools})

	r.addMessage(domain.Message{Role: "user", Content: prompts.Initial(query, r.parsed, initialTools)})

	resp, err := d.complete(ctx, r, d.registry.Definitions())
	if err != nil {
		r.machine = StateFailed
		result.Investigation = failedNote
		result.RawAnalysis = fmt.Sprintf("language model unavailable: %v", err)
		return result
	}

	resp = d.runRounds(ctx, r, resp)

	switch r.machine {
	case StateLimitStopped:
		result.RawAnalysis = d.partialAnalysis(r)
		result.Investigation = limitStoppedNote + "\n\n" + result.RawAnalysis
	case StateFailed:
		result.Investigation = failedNote
	default:
		r.machine = StateDone
		result.RawAnalysis = resp.Content
		if result.RawAnalysis == "" {
			result.RawAnalysis = d.partialAnalysis(r)
		}
		result.Investigation = d.formatNote(ctx, r, result.RawAnalysis)
	}
	return result
}

// runRounds executes the bounded tool-calling loop. Each iteration is one
// round; every entry re-checks the round budget, so a model that keeps
// requesting tools cannot loop forever.
func (d *Driver) runRounds(ctx context.Context, r *run, resp *domain.ChatResponse) *domain.ChatResponse {
	for resp.HasToolCalls() {
		if !r.state.CanStartNewRound() {
			r.machine = StateLimitStopped
			r.journal.Record("stop", "max rounds reached", r.state.Summary())
			r.logger.Info(ctx, "investigation stopped at round boundary", r.state.Summary())
			return resp
		}

		r.state.StartNewRound()
		r.machine = StateRoundActive
		phase := phaseForRound(r.state.ToolRoundsUsed)

		roundResults := make(map[string]any)
		outputs := d.executeRound(ctx, r, resp.ToolCalls, roundResults)

		r.addMessage(domain.Message{Role: "assistant", ToolCalls: resp.ToolCalls})
		r.addMessage(domain.Message{Role: "user", ToolResults: outputs})

		// Reclassification happens inside SelectFollowupTools, so it must
		// run before ShouldContinue reads the selector's working memory.
		followups := r.selector.SelectFollowupTools(ctx, roundResults, r.state, r.parsed)
		keepGoing, reason := r.selector.ShouldContinue(r.state)

		if d.opts.Metrics != nil {
			d.opts.Metrics.RecordToolRound(ctx, string(phase))
		}
		r.journal.Record("round", "round complete", map[string]any{
			"round":     r.state.ToolRoundsUsed,
			"phase":     string(phase),
			"followups": followups,
			"continue":  keepGoing,
			"reason":    reason,
		})

		var (
			next *domain.ChatResponse
			err  error
		)
		if keepGoing && !r.state.ConversationFull() {
			r.addMessage(domain.Message{Role: "user", Content: prompts.Followup(reason, followups, r.selector.KeyFindings())})
			next, err = d.complete(ctx, r, d.registry.Definitions())
		} else {
			// Final-analysis turn gets no tool catalog, so the model
			// cannot request further tools.
			r.machine = StateAwaitingFinalAnalysis
			findings := append(r.selector.KeyFindings(), r.selector.CrossToolInsights()...)
			r.addMessage(domain.Message{Role: "user", Content: prompts.FinalAnalysis(reason, findings)})
			next, err = d.complete(ctx, r, nil)
		}
		if err != nil {
			if ctx.Err() != nil {
				r.machine = StateLimitStopped
				r.journal.Record("stop", "investigation timeout", map[string]any{"error": err.Error()})
			} else {
				r.machine = StateFailed
				r.journal.Record("failure", "language model error", map[string]any{"error": err.Error()})
			}
			return resp
		}
		// The final-analysis turn is terminal. A model that answers it
		// with tool calls gets no further rounds; only its text counts.
		if r.machine == StateAwaitingFinalAnalysis {
			if next.HasToolCalls() {
				r.journal.Record("skip", "tool calls after final analysis ignored", map[string]any{"count": len(next.ToolCalls)})
				r.logger.Warn(ctx, "tool calls requested after final analysis", map[string]any{"count": len(next.ToolCalls)})
			}
			return next
		}
		resp = next
	}
	return resp
}

// executeRound runs the requested tool calls in order, skipping any that
// exceed the per-round budget with a stand-in result.
func (d *Driver) executeRound(ctx context.Context, r *run, calls []domain.ToolCall, roundResults map[string]any) []domain.ToolOutput {
	outputs := make([]domain.ToolOutput, 0, len(calls))
	for _, call := range calls {
		if !r.state.CanContinueRound() {
			outputs = append(outputs, domain.ToolOutput{
				CallID:  call.ID,
				Content: "BLOCKED: round limit reached, tool call skipped",
				IsError: true,
			})
			r.journal.Record("skip", "tool call blocked by round limit", map[string]any{"tool": call.Name})
			continue
		}

		r.state.RecordToolUse()
		raw := r.orch.Execute(ctx, call)
		roundResults[call.Name] = raw

		_, isError := raw["error"]
		outputs = append(outputs, domain.ToolOutput{
			CallID:  call.ID,
			Content: r.orch.Summarize(call.Name, raw),
			IsError: isError,
		})
		r.journal.Record("tool", call.Name, map[string]any{"error": isError})
	}
	return outputs
}

// complete runs one language-model turn. Transcript accounting happens in
// addMessage; instrumentation lives in the LLM client decorator.
func (d *Driver) complete(ctx context.Context, r *run, defs []domain.ToolDefinition) (*domain.ChatResponse, error) {
	return d.llm.Complete(ctx, r.messages, defs, d.opts.ChatOptions)
}

// formatNote asks for a formatted support note, falling back to the raw
// analysis when the formatting turn fails.
func (d *Driver) formatNote(ctx context.Context, r *run, rawAnalysis string) string {
	if rawAnalysis == "" {
		return limitStoppedNote
	}

	messages := []domain.Message{{
		Role:    "user",
		Content: prompts.FormatNote(r.query, rawAnalysis),
	}}
	resp, err := d.llm.Complete(ctx, messages, nil, d.opts.ChatOptions)
	if err != nil || resp.Content == "" {
		r.logger.Warn(ctx, "note formatting failed, returning raw analysis", map[string]any{})
		return rawAnalysis
	}
	return resp.Content
}

// partialAnalysis renders what was learned before a limit stop.
func (d *Driver) partialAnalysis(r *run) string {
	findings := append(r.selector.KeyFindings(), r.selector.CrossToolInsights()...)
	if len(findings) == 0 {
		return "No findings were gathered before the limit was reached."
	}
	out := "Findings gathered before stopping:"
	for _, finding := range findings {
		out += "\n- " + finding
	}
	return out
}

func (d *Driver) finish(ctx context.Context, r *run, result *domain.InvestigationResult, start time.Time) {
	status := map[State]string{
		StateDone:         "completed",
		StateLimitStopped: "limit_stopped",
		StateFailed:       "failed",
	}[r.machine]
	if status == "" {
		status = "completed"
	}

	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordInvestigationComplete(ctx, time.Since(start), status, r.state.TotalToolsUsed)
	}

	r.journal.Record("done", "investigation finished", map[string]any{
		"status":       status,
		"data_quality": r.selector.DataQuality(),
		"budget":       r.state.Summary(),
	})
	if d.opts.Debug {
		result.Debug = &domain.DebugInfo{
			LogSummary: r.journal.Summary(),
			LogExport:  r.journal.Export(),
		}
	}

	r.logger.Info(ctx, "investigation finished", map[string]any{
		"status":      status,
		"tools_used":  r.state.TotalToolsUsed,
		"rounds_used": r.state.ToolRoundsUsed,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (r *run) addMessage(msg domain.Message) {
	msg.Timestamp = time.Now()
	r.messages = append(r.messages, msg)
	r.state.RecordMessage()
}
