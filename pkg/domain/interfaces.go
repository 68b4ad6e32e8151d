package domain

import (
	"context"
	"time"
)

// LLMClient is the language-model boundary. Implementations normalize
// provider responses so a ChatResponse never conflates prose with tool calls.
type LLMClient interface {
	// Complete runs one chat turn with the given conversation and tool catalog.
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition, opts ChatOptions) (*ChatResponse, error)

	// IsHealthy reports whether the provider endpoint is reachable.
	IsHealthy(ctx context.Context) bool
}

// QueryParser extracts structured entities from a free-text support query.
// Parse never fails: when model extraction is unavailable it falls back to
// pattern matching and returns a low-confidence result.
type QueryParser interface {
	Parse(ctx context.Context, query string) *ParsedQuery
}

// DeviceStore reads device, access-code, event, and audit data from the
// operational database. All list methods honor the given limit.
type DeviceStore interface {
	DeviceInfo(ctx context.Context, deviceID string) (map[string]any, error)
	ThirdPartyDeviceInfo(ctx context.Context, deviceID string) (map[string]any, error)
	AccessCodes(ctx context.Context, deviceID string, limit int) ([]map[string]any, error)
	ActionAttempts(ctx context.Context, deviceID string, limit int) ([]map[string]any, error)
	DeviceEvents(ctx context.Context, deviceID string, since time.Time, limit int) ([]map[string]any, error)
	AuditLogs(ctx context.Context, workspaceID string, since time.Time, limit int) ([]map[string]any, error)
}

// LogSearcher queries the log search backend for service-side traces.
type LogSearcher interface {
	Search(ctx context.Context, query string, since time.Time, limit int) ([]map[string]any, error)
}

// AdminLinker generates admin console links for entities observed during an
// investigation.
type AdminLinker interface {
	Links(ctx context.Context, entities map[string]any) ([]AdminLink, error)
}
