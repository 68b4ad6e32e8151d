package investigation

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockwise/support-agent/internal/testutil"
	"github.com/lockwise/support-agent/pkg/domain"
	"github.com/lockwise/support-agent/pkg/tools"
)

func newTestDriver(t *testing.T, llm domain.LLMClient, store *testutil.MockDeviceStore, opts DriverOptions) *Driver {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	registry, err := tools.NewCatalog(tools.CatalogDeps{
		Store:    store,
		Searcher: &testutil.MockLogSearcher{},
		Linker:   &testutil.MockAdminLinker{},
	})
	require.NoError(t, err)

	parser := &testutil.MockQueryParser{
		Result: testutil.NewTestParsedQuery(domain.QuestionAccessCode),
	}
	return NewDriver(llm, parser, registry, logger, opts)
}

func deviceInfoCall(id string) domain.ToolCall {
	return domain.ToolCall{
		ID:   id,
		Name: domain.ToolDeviceInfo,
		Args: map[string]any{"device_id": testutil.TestDeviceID},
	}
}

func TestInvestigateHappyPath(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)
	store.Codes = []map[string]any{
		testutil.AccessCodeRecord("ac-1", "Front Door", true),
		testutil.AccessCodeRecord("ac-2", "Guest", false),
	}

	llm := testutil.NewMockLLMClient(
		testutil.ToolTurn(
			deviceInfoCall("call-1"),
			domain.ToolCall{
				ID:   "call-2",
				Name: domain.ToolAccessCodes,
				Args: map[string]any{"device_id": testutil.TestDeviceID},
			},
		),
		testutil.TextTurn("The guest code is unmanaged and should be converted."),
		testutil.TextTurn("## Support Note\nConvert the guest code to a managed code."),
	)

	d := newTestDriver(t, llm, store, DriverOptions{Budget: validBudget()})
	result := d.Investigate(context.Background(), "Why did the guest code stop working?")

	require.NotNil(t, result)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "Why did the guest code stop working?", result.OriginalQuery)
	assert.Equal(t, "The guest code is unmanaged and should be converted.", result.RawAnalysis)
	assert.Equal(t, "## Support Note\nConvert the guest code to a managed code.", result.Investigation)

	assert.Equal(t, 1, store.CallsByMethod["DeviceInfo"])
	assert.Equal(t, 1, store.CallsByMethod["AccessCodes"])
	assert.Equal(t, 3, llm.CallCount)
	assert.Nil(t, result.Debug, "debug info only attaches when requested")
}

func TestInvestigateDirectAnswerWithoutTools(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	llm := testutil.NewMockLLMClient(
		testutil.TextTurn("Access codes must be 4 to 8 digits."),
		testutil.TextTurn("## Support Note\nAccess codes must be 4 to 8 digits."),
	)

	d := newTestDriver(t, llm, store, DriverOptions{Budget: validBudget()})
	result := d.Investigate(context.Background(), "What lengths can an access code be?")

	require.NotNil(t, result)
	assert.Equal(t, "Access codes must be 4 to 8 digits.", result.RawAnalysis)
	assert.Empty(t, store.CallsByMethod, "no tools should run for a direct answer")
}

func TestInvestigateBlocksCallsOverRoundBudget(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)
	store.Codes = []map[string]any{testutil.AccessCodeRecord("ac-1", "Front Door", true)}

	// Three requested calls against a two-per-round budget: the third gets a
	// stand-in result and its backing lookup never runs.
	llm := testutil.NewMockLLMClient(
		testutil.ToolTurn(
			deviceInfoCall("call-1"),
			domain.ToolCall{
				ID:   "call-2",
				Name: domain.ToolAccessCodes,
				Args: map[string]any{"device_id": testutil.TestDeviceID},
			},
			domain.ToolCall{
				ID:   "call-3",
				Name: domain.ToolActionAttempts,
				Args: map[string]any{"device_id": testutil.TestDeviceID},
			},
		),
		testutil.TextTurn("Final analysis from partial data."),
		testutil.TextTurn("## Support Note\nPartial data."),
	)

	budget := validBudget()
	budget.MaxToolRounds = 1
	budget.MaxToolsPerRound = 2
	budget.MaxTotalTools = 2

	d := newTestDriver(t, llm, store, DriverOptions{Budget: budget, Debug: true})
	result := d.Investigate(context.Background(), "Why won't the door lock?")

	require.NotNil(t, result)
	assert.Equal(t, 1, store.CallsByMethod["DeviceInfo"])
	assert.Equal(t, 1, store.CallsByMethod["AccessCodes"])
	assert.Equal(t, 0, store.CallsByMethod["ActionAttempts"], "blocked call must not reach the store")

	require.NotNil(t, result.Debug)
	assert.Contains(t, result.Debug.LogExport, "blocked by round limit")
}

func TestInvestigateModelKeepsRequestingToolsPastRoundLimit(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)

	// The model requests tools even on the final-analysis turn. The turn
	// is terminal, so the request is ignored and the round-one findings
	// become the analysis.
	llm := testutil.NewMockLLMClient(
		testutil.ToolTurn(deviceInfoCall("call-1")),
		testutil.ToolTurn(deviceInfoCall("call-2")),
		testutil.TextTurn("## Support Note\nDevice is reachable."),
	)

	budget := validBudget()
	budget.MaxToolRounds = 1

	d := newTestDriver(t, llm, store, DriverOptions{Budget: budget})
	result := d.Investigate(context.Background(), "Is the front door online?")

	require.NotNil(t, result)
	assert.Contains(t, result.RawAnalysis, "Device type: august_lock")
	assert.Equal(t, "## Support Note\nDevice is reachable.", result.Investigation)
	assert.Equal(t, 1, store.CallsByMethod["DeviceInfo"], "second round never executes")
}

func TestInvestigateFinalAnalysisTurnCarriesNoTools(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)

	var finalTurnTools []domain.ToolDefinition
	seenFinal := false
	llm := &testutil.MockLLMClient{}
	llm.CompleteFunc = func(ctx context.Context, messages []domain.Message, defs []domain.ToolDefinition, opts domain.ChatOptions) (*domain.ChatResponse, error) {
		switch llm.CallCount {
		case 1:
			return testutil.ToolTurn(deviceInfoCall("call-1")), nil
		case 2:
			finalTurnTools = defs
			seenFinal = true
			return testutil.TextTurn("analysis"), nil
		default:
			return testutil.TextTurn("note"), nil
		}
	}

	budget := validBudget()
	budget.MaxToolRounds = 1

	d := newTestDriver(t, llm, store, DriverOptions{Budget: budget})
	d.Investigate(context.Background(), "Is the device healthy?")

	require.True(t, seenFinal)
	assert.Nil(t, finalTurnTools, "final-analysis turn must not offer the tool catalog")
}

func TestInvestigateFailsWhenLLMUnavailable(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	llm := &testutil.MockLLMClient{ShouldError: true, ErrorMessage: "connection refused"}

	d := newTestDriver(t, llm, store, DriverOptions{Budget: validBudget()})
	result := d.Investigate(context.Background(), "Why is the lock offline?")

	require.NotNil(t, result)
	assert.Equal(t, failedNote, result.Investigation)
	assert.Contains(t, result.RawAnalysis, "connection refused")
}

func TestInvestigateFailsOnMidRoundLLMError(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)

	llm := &testutil.MockLLMClient{}
	llm.CompleteFunc = func(ctx context.Context, messages []domain.Message, defs []domain.ToolDefinition, opts domain.ChatOptions) (*domain.ChatResponse, error) {
		if llm.CallCount == 1 {
			return testutil.ToolTurn(deviceInfoCall("call-1")), nil
		}
		return nil, fmt.Errorf("upstream 500")
	}

	d := newTestDriver(t, llm, store, DriverOptions{Budget: validBudget()})
	result := d.Investigate(context.Background(), "Why is the lock offline?")

	require.NotNil(t, result)
	assert.Equal(t, failedNote, result.Investigation)
}

func TestInvestigateRecoversFromPanic(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	llm := &testutil.MockLLMClient{}
	llm.CompleteFunc = func(ctx context.Context, messages []domain.Message, defs []domain.ToolDefinition, opts domain.ChatOptions) (*domain.ChatResponse, error) {
		panic("scripted failure")
	}

	d := newTestDriver(t, llm, store, DriverOptions{Budget: validBudget()})
	result := d.Investigate(context.Background(), "Why is the lock offline?")

	require.NotNil(t, result)
	assert.Equal(t, failedNote, result.Investigation)
}

func TestInvestigateAttachesDebugJournal(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	llm := testutil.NewMockLLMClient(
		testutil.TextTurn("No investigation required."),
		testutil.TextTurn("## Support Note\nNothing to do."),
	)

	d := newTestDriver(t, llm, store, DriverOptions{Budget: validBudget(), Debug: true})
	result := d.Investigate(context.Background(), "hello")

	require.NotNil(t, result.Debug)
	assert.NotEmpty(t, result.Debug.LogExport)
	assert.Contains(t, result.Debug.LogSummary, "parse")
	assert.Contains(t, result.Debug.LogSummary, "done")
}

func TestInvestigateFormatNoteFallsBackToRawAnalysis(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	llm := &testutil.MockLLMClient{}
	llm.CompleteFunc = func(ctx context.Context, messages []domain.Message, defs []domain.ToolDefinition, opts domain.ChatOptions) (*domain.ChatResponse, error) {
		if llm.CallCount == 1 {
			return testutil.TextTurn("raw analysis text"), nil
		}
		return nil, fmt.Errorf("formatting turn failed")
	}

	d := newTestDriver(t, llm, store, DriverOptions{Budget: validBudget()})
	result := d.Investigate(context.Background(), "what is a workspace?")

	assert.Equal(t, "raw analysis text", result.RawAnalysis)
	assert.Equal(t, "raw analysis text", result.Investigation)
}

func TestInvestigateNoRoundsAfterFinalAnalysis(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)
	store.Codes = []map[string]any{testutil.AccessCodeRecord("ac-1", "Front Door", true)}
	store.Events = []map[string]any{{"event_type": "lock.locked"}}

	llm := testutil.NewMockLLMClient(
		testutil.ToolTurn(
			deviceInfoCall("call-1"),
			domain.ToolCall{
				ID:   "call-2",
				Name: domain.ToolAccessCodes,
				Args: map[string]any{"device_id": testutil.TestDeviceID},
			},
			domain.ToolCall{
				ID:   "call-3",
				Name: domain.ToolDeviceEvents,
				Args: map[string]any{"device_id": testutil.TestDeviceID},
			},
		),
		testutil.ToolTurn(deviceInfoCall("call-4")),
		testutil.TextTurn("## Support Note\nAll evidence gathered in round one."),
	)

	d := newTestDriver(t, llm, store, DriverOptions{Budget: validBudget(), Debug: true})
	result := d.Investigate(context.Background(), "Why did the guest code stop working?")

	require.NotNil(t, result)
	assert.Equal(t, 1, store.CallsByMethod["DeviceInfo"], "no tool round may run after the final-analysis turn")
	assert.Equal(t, 3, llm.CallCount)
	assert.Contains(t, result.RawAnalysis, "Device type: august_lock")
	require.NotNil(t, result.Debug)
	assert.Contains(t, result.Debug.LogExport, "tool calls after final analysis ignored")
	assert.Contains(t, result.Debug.LogExport, `"tool_rounds_used":1`)
}

func TestInvestigateTimeoutReportsLimitStop(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)

	llm := &testutil.MockLLMClient{}
	llm.CompleteFunc = func(ctx context.Context, messages []domain.Message, defs []domain.ToolDefinition, opts domain.ChatOptions) (*domain.ChatResponse, error) {
		if llm.CallCount == 1 {
			return testutil.ToolTurn(deviceInfoCall("call-1")), nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	budget := validBudget()
	budget.ToolTimeout = 10 * time.Millisecond
	budget.InvestigationTimeout = 50 * time.Millisecond

	d := newTestDriver(t, llm, store, DriverOptions{Budget: budget, Debug: true})
	result := d.Investigate(context.Background(), "Is the lock online?")

	require.NotNil(t, result)
	assert.True(t, strings.HasPrefix(result.Investigation, limitStoppedNote))
	assert.Contains(t, result.RawAnalysis, "Device type: august_lock")
	require.NotNil(t, result.Debug)
	assert.Contains(t, result.Debug.LogExport, "investigation timeout")
}

func TestInvestigateCountsEachMessageOnce(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)

	llm := testutil.NewMockLLMClient(
		testutil.ToolTurn(deviceInfoCall("call-1")),
		testutil.TextTurn("Device is healthy."),
		testutil.TextTurn("## Support Note\nDevice is healthy."),
	)

	d := newTestDriver(t, llm, store, DriverOptions{Budget: validBudget(), Debug: true})
	result := d.Investigate(context.Background(), "Is the lock online?")

	require.NotNil(t, result.Debug)
	// Transcript: initial prompt, assistant tool calls, tool results,
	// followup prompt. The assistant text replies never join it.
	assert.Contains(t, result.Debug.LogExport, `"conversation_messages":4`)
}
