package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockwise/support-agent/internal/testutil"
	"github.com/lockwise/support-agent/pkg/domain"
)

func newTestOrchestrator(t *testing.T, store *testutil.MockDeviceStore, linker domain.AdminLinker) *Orchestrator {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	registry, err := NewCatalog(CatalogDeps{
		Store:    store,
		Searcher: &testutil.MockLogSearcher{},
		Linker:   linker,
	})
	require.NoError(t, err)
	return NewOrchestrator(registry, logger, OrchestratorOptions{
		ToolTimeout:       time.Second,
		DefaultQueryLimit: 10,
		MaxQueryLimit:     100,
	})
}

func TestExecuteUnknownTool(t *testing.T) {
	o := newTestOrchestrator(t, testutil.NewMockDeviceStore(), &testutil.MockAdminLinker{})

	raw := o.Execute(context.Background(), domain.ToolCall{ID: "c1", Name: "reboot_device"})
	assert.Equal(t, map[string]any{"error": "unknown tool: reboot_device"}, raw)
}

func TestExecuteMissingRequiredArgument(t *testing.T) {
	o := newTestOrchestrator(t, testutil.NewMockDeviceStore(), &testutil.MockAdminLinker{})

	raw := o.Execute(context.Background(), domain.ToolCall{
		ID:   "c1",
		Name: domain.ToolDeviceInfo,
		Args: map[string]any{},
	})
	assert.Equal(t, map[string]any{"error": "missing required argument: device_id"}, raw)
}

func TestExecuteConvertsHandlerErrorToPayload(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.DeviceInfoErr = fmt.Errorf("Device not found")
	o := newTestOrchestrator(t, store, &testutil.MockAdminLinker{})

	raw := o.Execute(context.Background(), domain.ToolCall{
		ID:   "c1",
		Name: domain.ToolDeviceInfo,
		Args: map[string]any{"device_id": testutil.TestDeviceID},
	})
	assert.Equal(t, map[string]any{"error": "Device not found"}, raw)

	_, cached := o.CachedResult(domain.ToolDeviceInfo)
	assert.False(t, cached, "failed calls are not cached")
}

func TestExecuteAttachesPagination(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	for i := 0; i < 11; i++ {
		store.Codes = append(store.Codes,
			testutil.AccessCodeRecord(fmt.Sprintf("ac-%d", i), fmt.Sprintf("Code %d", i), true))
	}
	o := newTestOrchestrator(t, store, &testutil.MockAdminLinker{})

	// 11 records behind a limit of 10: the probe at limit 11 sees the
	// eleventh record and reports more data available.
	raw := o.Execute(context.Background(), domain.ToolCall{
		ID:   "c1",
		Name: domain.ToolAccessCodes,
		Args: map[string]any{"device_id": testutil.TestDeviceID, "limit": 10},
	})

	page, ok := raw["pagination"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 10, page["current_count"])
	assert.Equal(t, true, page["has_more"])
	assert.Equal(t, 20, page["suggested_next_limit"])
	assert.Equal(t, 2, store.CallsByMethod["AccessCodes"], "probe issues one extra lookup")
}

func TestExecutePaginationNoMoreData(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Codes = []map[string]any{
		testutil.AccessCodeRecord("ac-1", "Front Door", true),
	}
	o := newTestOrchestrator(t, store, &testutil.MockAdminLinker{})

	raw := o.Execute(context.Background(), domain.ToolCall{
		ID:   "c1",
		Name: domain.ToolAccessCodes,
		Args: map[string]any{"device_id": testutil.TestDeviceID, "limit": 10},
	})

	page, ok := raw["pagination"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, page["current_count"])
	assert.Equal(t, false, page["has_more"])
	assert.NotContains(t, page, "suggested_next_limit")
	assert.Equal(t, 1, store.CallsByMethod["AccessCodes"], "below-limit result needs no probe")
}

func TestExecutePaginationStopsAtMaxLimit(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	for i := 0; i < 150; i++ {
		store.Codes = append(store.Codes,
			testutil.AccessCodeRecord(fmt.Sprintf("ac-%d", i), fmt.Sprintf("Code %d", i), true))
	}
	o := newTestOrchestrator(t, store, &testutil.MockAdminLinker{})

	raw := o.Execute(context.Background(), domain.ToolCall{
		ID:   "c1",
		Name: domain.ToolAccessCodes,
		Args: map[string]any{"device_id": testutil.TestDeviceID, "limit": 100},
	})

	page, ok := raw["pagination"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, page["has_more"], "no probe beyond the maximum query limit")
	assert.Equal(t, 1, store.CallsByMethod["AccessCodes"])
}

func TestExecuteNormalizesLimit(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	captured := 0
	store.AccessCodesFunc = func(deviceID string, limit int) ([]map[string]any, error) {
		captured = limit
		return nil, nil
	}
	o := newTestOrchestrator(t, store, &testutil.MockAdminLinker{})

	o.Execute(context.Background(), domain.ToolCall{
		ID:   "c1",
		Name: domain.ToolAccessCodes,
		Args: map[string]any{"device_id": testutil.TestDeviceID, "limit": 5000},
	})
	assert.Equal(t, 100, captured, "limit clamps to the maximum")

	o.Execute(context.Background(), domain.ToolCall{
		ID:   "c2",
		Name: domain.ToolAccessCodes,
		Args: map[string]any{"device_id": testutil.TestDeviceID},
	})
	assert.Equal(t, 10, captured, "missing limit falls back to the default")
}

func TestExecuteCachesRawResults(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)
	o := newTestOrchestrator(t, store, &testutil.MockAdminLinker{})

	o.Execute(context.Background(), domain.ToolCall{
		ID:   "c1",
		Name: domain.ToolDeviceInfo,
		Args: map[string]any{"device_id": testutil.TestDeviceID},
	})

	cached, ok := o.CachedResult(domain.ToolDeviceInfo)
	require.True(t, ok)
	assert.Equal(t, testutil.TestDeviceID, cached["device_id"])
}

func TestReconcileContextPrefersObservedValues(t *testing.T) {
	store := testutil.NewMockDeviceStore()
	store.Devices[testutil.TestDeviceID] = testutil.DeviceRecord(true)
	store.Codes = []map[string]any{
		testutil.AccessCodeRecord("ac-1", "Front Door", true),
		testutil.AccessCodeRecord("ac-2", "Guest", false),
	}
	linker := &testutil.MockAdminLinker{}
	o := newTestOrchestrator(t, store, linker)

	o.Execute(context.Background(), domain.ToolCall{
		ID:   "c1",
		Name: domain.ToolDeviceInfo,
		Args: map[string]any{"device_id": testutil.TestDeviceID},
	})
	o.Execute(context.Background(), domain.ToolCall{
		ID:   "c2",
		Name: domain.ToolAccessCodes,
		Args: map[string]any{"device_id": testutil.TestDeviceID},
	})

	// The model asserts a fabricated device id; the observed one wins.
	o.Execute(context.Background(), domain.ToolCall{
		ID:   "c3",
		Name: domain.ToolAdminLinks,
		Args: map[string]any{"device_id": "00000000-dead-beef-0000-000000000000"},
	})

	require.NotNil(t, linker.LastEntities)
	assert.Equal(t, testutil.TestDeviceID, linker.LastEntities["device_id"])
	assert.Equal(t, testutil.TestWorkspaceID, linker.LastEntities["workspace_id"])
	assert.Equal(t, []any{"ac-1", "ac-2"}, linker.LastEntities["access_codes"])
}

func TestReconcileContextKeepsAssertedWhenNothingObserved(t *testing.T) {
	o := newTestOrchestrator(t, testutil.NewMockDeviceStore(), &testutil.MockAdminLinker{})

	merged := o.ReconcileContext(map[string]any{"device_id": "asserted-id"})
	assert.Equal(t, "asserted-id", merged["device_id"])
}

func TestSummarize(t *testing.T) {
	o := newTestOrchestrator(t, testutil.NewMockDeviceStore(), &testutil.MockAdminLinker{})

	t.Run("error payload", func(t *testing.T) {
		got := o.Summarize(domain.ToolDeviceInfo, map[string]any{"error": "Device not found"})
		assert.Equal(t, "Tool get_device_info failed: Device not found", got)
	})

	t.Run("device info", func(t *testing.T) {
		got := o.Summarize(domain.ToolDeviceInfo, testutil.DeviceRecord(true))
		assert.Contains(t, got, "august_lock")
		assert.Contains(t, got, "online")
	})

	t.Run("access codes call out unmanaged names", func(t *testing.T) {
		got := o.Summarize(domain.ToolAccessCodes, map[string]any{
			"access_codes": []any{
				testutil.AccessCodeRecord("ac-1", "Front Door", true),
				testutil.AccessCodeRecord("ac-2", "Guest", false),
			},
		})
		assert.Equal(t, "2 access codes on device; 1 unmanaged: Guest", got)
	})

	t.Run("unknown tool falls back to field count", func(t *testing.T) {
		got := o.Summarize("reboot_device", map[string]any{"a": 1, "b": 2})
		assert.Equal(t, "Tool reboot_device returned 2 fields", got)
	})
}

func TestExecuteConvertsTimeoutToErrorPayload(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	registry := NewRegistry()
	require.NoError(t, registry.Register(Handler{
		Definition: domain.ToolDefinition{Name: "slow_tool"},
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))
	o := NewOrchestrator(registry, logger, OrchestratorOptions{
		ToolTimeout:       20 * time.Millisecond,
		DefaultQueryLimit: 10,
		MaxQueryLimit:     100,
	})

	raw := o.Execute(context.Background(), domain.ToolCall{ID: "c1", Name: "slow_tool"})

	assert.Equal(t, map[string]any{"error": "tool timed out after 20ms"}, raw)
	_, cached := o.CachedResult("slow_tool")
	assert.False(t, cached, "timed-out calls are not cached")
}
