package testutil

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/lockwise/support-agent/pkg/domain"
	"github.com/lockwise/support-agent/pkg/observability"
)

// TestTimeout provides a standard timeout for test contexts
const TestTimeout = 5 * time.Second

// Fixed identifiers used across tests.
const (
	TestDeviceID    = "11111111-2222-3333-4444-555555555555"
	TestWorkspaceID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
)

// NewTestContext creates a context with standard test timeout
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// NewTestLogger creates a quiet logger whose output is captured in the
// returned buffer.
func NewTestLogger(t *testing.T) (*observability.StructuredLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	observability.SetLogOutput(buf)
	t.Cleanup(func() { observability.SetLogOutput(os.Stdout) })
	return observability.NewStructuredLogger("test"), buf
}

// NewTestParsedQuery creates a parsed query mentioning the fixed test device.
func NewTestParsedQuery(questionType domain.QuestionType) *domain.ParsedQuery {
	return &domain.ParsedQuery{
		DeviceIDs:    []string{TestDeviceID},
		WorkspaceIDs: []string{TestWorkspaceID},
		QuestionType: questionType,
		Confidence:   0.9,
		Summary:      "test query",
	}
}

// DeviceRecord builds a plausible device payload.
func DeviceRecord(online bool) map[string]any {
	return map[string]any{
		"device_id":    TestDeviceID,
		"workspace_id": TestWorkspaceID,
		"device_type":  "august_lock",
		"display_name": "Front Door",
		"properties": map[string]any{
			"online":        online,
			"locked":        true,
			"battery_level": 0.84,
		},
	}
}

// AccessCodeRecord builds one access code payload.
func AccessCodeRecord(id, name string, managed bool) map[string]any {
	return map[string]any{
		"access_code_id": id,
		"device_id":      TestDeviceID,
		"name":           name,
		"code":           "4821",
		"is_managed":     managed,
		"status":         "set",
	}
}

// ActionAttemptRecord builds one action attempt payload.
func ActionAttemptRecord(id, status, errMsg string) map[string]any {
	record := map[string]any{
		"action_attempt_id": id,
		"device_id":         TestDeviceID,
		"action_type":       "LOCK_DOOR",
		"status":            status,
	}
	if errMsg != "" {
		record["error_message"] = errMsg
	}
	return record
}
