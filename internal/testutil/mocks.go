package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lockwise/support-agent/pkg/domain"
)

// MockLLMClient is a mock implementation of LLMClient for testing. Turns
// holds scripted responses popped in order; when the script runs out, the
// final-answer fallback is returned.
type MockLLMClient struct {
	mu           sync.Mutex
	Turns        []*domain.ChatResponse
	CallCount    int
	LastMessages []domain.Message
	LastTools    []domain.ToolDefinition
	ShouldError  bool
	ErrorMessage string
	// CompleteFunc allows custom behavior for tests
	CompleteFunc func(ctx context.Context, messages []domain.Message, tools []domain.ToolDefinition, opts domain.ChatOptions) (*domain.ChatResponse, error)
}

// NewMockLLMClient creates a new mock LLM client
func NewMockLLMClient(turns ...*domain.ChatResponse) *MockLLMClient {
	return &MockLLMClient{Turns: turns}
}

// Complete implements domain.LLMClient
func (m *MockLLMClient) Complete(ctx context.Context, messages []domain.Message, tools []domain.ToolDefinition, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	if m.CompleteFunc != nil {
		m.mu.Lock()
		m.CallCount++
		m.LastMessages = messages
		m.LastTools = tools
		m.mu.Unlock()
		return m.CompleteFunc(ctx, messages, tools, opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastMessages = messages
	m.LastTools = tools

	if m.ShouldError {
		return nil, fmt.Errorf("%s", m.ErrorMessage)
	}

	if len(m.Turns) > 0 {
		next := m.Turns[0]
		m.Turns = m.Turns[1:]
		return next, nil
	}

	return &domain.ChatResponse{
		Content: "Mock final analysis",
		Usage: domain.TokenUsage{
			PromptTokens:     50,
			CompletionTokens: 50,
			TotalTokens:      100,
		},
		StopReason: "end_turn",
	}, nil
}

// IsHealthy implements domain.LLMClient
func (m *MockLLMClient) IsHealthy(ctx context.Context) bool {
	return !m.ShouldError
}

// TextTurn builds a scripted prose response.
func TextTurn(content string) *domain.ChatResponse {
	return &domain.ChatResponse{
		Content:    content,
		Usage:      domain.TokenUsage{PromptTokens: 50, CompletionTokens: 50, TotalTokens: 100},
		StopReason: "end_turn",
	}
}

// ToolTurn builds a scripted tool-calling response.
func ToolTurn(calls ...domain.ToolCall) *domain.ChatResponse {
	return &domain.ChatResponse{
		ToolCalls:  calls,
		Usage:      domain.TokenUsage{PromptTokens: 50, CompletionTokens: 50, TotalTokens: 100},
		StopReason: "tool_use",
	}
}

// MockDeviceStore is a scriptable domain.DeviceStore. Each field overrides
// one lookup; unset lookups return empty results.
type MockDeviceStore struct {
	mu sync.Mutex

	Devices          map[string]map[string]any
	ThirdPartyInfo   map[string]map[string]any
	Codes            []map[string]any
	Attempts         []map[string]any
	Events           []map[string]any
	Logs             []map[string]any
	DeviceInfoErr    error
	AccessCodesFunc  func(deviceID string, limit int) ([]map[string]any, error)
	CallsByMethod    map[string]int
}

// NewMockDeviceStore creates an empty scripted store.
func NewMockDeviceStore() *MockDeviceStore {
	return &MockDeviceStore{
		Devices:        make(map[string]map[string]any),
		ThirdPartyInfo: make(map[string]map[string]any),
		CallsByMethod:  make(map[string]int),
	}
}

func (m *MockDeviceStore) record(method string) {
	m.mu.Lock()
	m.CallsByMethod[method]++
	m.mu.Unlock()
}

func (m *MockDeviceStore) DeviceInfo(ctx context.Context, deviceID string) (map[string]any, error) {
	m.record("DeviceInfo")
	if m.DeviceInfoErr != nil {
		return nil, m.DeviceInfoErr
	}
	device, ok := m.Devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("Device not found")
	}
	return device, nil
}

func (m *MockDeviceStore) ThirdPartyDeviceInfo(ctx context.Context, deviceID string) (map[string]any, error) {
	m.record("ThirdPartyDeviceInfo")
	device, ok := m.ThirdPartyInfo[deviceID]
	if !ok {
		return nil, fmt.Errorf("Device not found")
	}
	return device, nil
}

func (m *MockDeviceStore) AccessCodes(ctx context.Context, deviceID string, limit int) ([]map[string]any, error) {
	m.record("AccessCodes")
	if m.AccessCodesFunc != nil {
		return m.AccessCodesFunc(deviceID, limit)
	}
	return capRecords(m.Codes, limit), nil
}

func (m *MockDeviceStore) ActionAttempts(ctx context.Context, deviceID string, limit int) ([]map[string]any, error) {
	m.record("ActionAttempts")
	return capRecords(m.Attempts, limit), nil
}

func (m *MockDeviceStore) DeviceEvents(ctx context.Context, deviceID string, since time.Time, limit int) ([]map[string]any, error) {
	m.record("DeviceEvents")
	return capRecords(m.Events, limit), nil
}

func (m *MockDeviceStore) AuditLogs(ctx context.Context, workspaceID string, since time.Time, limit int) ([]map[string]any, error) {
	m.record("AuditLogs")
	return capRecords(m.Logs, limit), nil
}

func capRecords(records []map[string]any, limit int) []map[string]any {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

// MockLogSearcher is a scriptable domain.LogSearcher.
type MockLogSearcher struct {
	Entries   []map[string]any
	Err       error
	CallCount int
}

func (m *MockLogSearcher) Search(ctx context.Context, query string, since time.Time, limit int) ([]map[string]any, error) {
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	return capRecords(m.Entries, limit), nil
}

// MockAdminLinker records the entities it was handed, so tests can verify
// the orchestrator's context reconciliation.
type MockAdminLinker struct {
	Links_       []domain.AdminLink
	Err          error
	LastEntities map[string]any
}

func (m *MockAdminLinker) Links(ctx context.Context, entities map[string]any) ([]domain.AdminLink, error) {
	m.LastEntities = entities
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Links_ == nil {
		return []domain.AdminLink{{Title: "Device overview", URL: "https://admin.example/devices/x"}}, nil
	}
	return m.Links_, nil
}

// MockQueryParser returns a fixed parse for every query.
type MockQueryParser struct {
	Result *domain.ParsedQuery
}

func (m *MockQueryParser) Parse(ctx context.Context, query string) *domain.ParsedQuery {
	if m.Result != nil {
		return m.Result
	}
	return &domain.ParsedQuery{
		QuestionType: domain.QuestionTroubleshooting,
		Confidence:   0.5,
		Summary:      query,
	}
}
