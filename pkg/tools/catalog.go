package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lockwise/support-agent/pkg/domain"
)

// CatalogDeps are the backing connectors for the standard tool catalog.
type CatalogDeps struct {
	Store    domain.DeviceStore
	Searcher domain.LogSearcher
	Linker   domain.AdminLinker
}

// defaultLookback bounds time-windowed queries when the caller gives no
// explicit window.
const defaultLookback = 7 * 24 * time.Hour

// NewCatalog builds the standard investigation tool registry against the
// given connectors. The searcher and linker may be nil; their tools are then
// omitted from the catalog.
func NewCatalog(deps CatalogDeps) (*Registry, error) {
	r := NewRegistry()

	handlers := []Handler{
		deviceInfoHandler(deps.Store),
		thirdPartyDeviceInfoHandler(deps.Store),
		accessCodesHandler(deps.Store),
		actionAttemptsHandler(deps.Store),
		deviceEventsHandler(deps.Store),
		auditLogsHandler(deps.Store),
	}
	if deps.Searcher != nil {
		handlers = append(handlers, searchLogsHandler(deps.Searcher))
	}
	if deps.Linker != nil {
		handlers = append(handlers, adminLinksHandler(deps.Linker))
	}

	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func deviceIDSchema() domain.ToolSchema {
	return domain.ToolSchema{
		Type: "object",
		Properties: map[string]domain.SchemaProperty{
			"device_id": {
				Type:        "string",
				Description: "Device identifier (UUID)",
			},
		},
		Required: []string{"device_id"},
	}
}

func listSchema(extra map[string]domain.SchemaProperty, required ...string) domain.ToolSchema {
	props := map[string]domain.SchemaProperty{
		"limit": {
			Type:        "integer",
			Description: "Maximum number of records to return",
			Default:     10,
		},
	}
	for name, prop := range extra {
		props[name] = prop
	}
	return domain.ToolSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func deviceInfoHandler(store domain.DeviceStore) Handler {
	return Handler{
		Definition: domain.ToolDefinition{
			Name:        domain.ToolDeviceInfo,
			Description: "Look up the full device record: type, properties, online status, battery",
			InputSchema: deviceIDSchema(),
		},
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return store.DeviceInfo(ctx, stringArg(args, "device_id"))
		},
		Summarize: summarizeDeviceInfo,
	}
}

func thirdPartyDeviceInfoHandler(store domain.DeviceStore) Handler {
	return Handler{
		Definition: domain.ToolDefinition{
			Name:        domain.ToolThirdPartyDeviceInfo,
			Description: "Look up the device record as reported by the third-party provider API",
			InputSchema: deviceIDSchema(),
		},
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return store.ThirdPartyDeviceInfo(ctx, stringArg(args, "device_id"))
		},
		Summarize: summarizeDeviceInfo,
	}
}

func accessCodesHandler(store domain.DeviceStore) Handler {
	return Handler{
		Definition: domain.ToolDefinition{
			Name:        domain.ToolAccessCodes,
			Description: "List access codes on a device, including unmanaged codes present on-device",
			InputSchema: listSchema(map[string]domain.SchemaProperty{
				"device_id": {Type: "string", Description: "Device identifier (UUID)"},
			}, "device_id"),
		},
		ListKey: "access_codes",
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			codes, err := store.AccessCodes(ctx, stringArg(args, "device_id"), intArg(args, "limit"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"access_codes": anySlice(codes)}, nil
		},
		Summarize: summarizeAccessCodes,
	}
}

func actionAttemptsHandler(store domain.DeviceStore) Handler {
	return Handler{
		Definition: domain.ToolDefinition{
			Name:        domain.ToolActionAttempts,
			Description: "List recent lock/unlock action attempts for a device with their outcomes",
			InputSchema: listSchema(map[string]domain.SchemaProperty{
				"device_id": {Type: "string", Description: "Device identifier (UUID)"},
			}, "device_id"),
		},
		ListKey: "action_attempts",
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			attempts, err := store.ActionAttempts(ctx, stringArg(args, "device_id"), intArg(args, "limit"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"action_attempts": anySlice(attempts)}, nil
		},
		Summarize: summarizeActionAttempts,
	}
}

func deviceEventsHandler(store domain.DeviceStore) Handler {
	return Handler{
		Definition: domain.ToolDefinition{
			Name:        domain.ToolDeviceEvents,
			Description: "List recent device events such as connect, disconnect, and code usage",
			InputSchema: listSchema(map[string]domain.SchemaProperty{
				"device_id": {Type: "string", Description: "Device identifier (UUID)"},
			}, "device_id"),
		},
		ListKey: "device_events",
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			since := time.Now().Add(-defaultLookback)
			events, err := store.DeviceEvents(ctx, stringArg(args, "device_id"), since, intArg(args, "limit"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"device_events": anySlice(events)}, nil
		},
		Summarize: summarizeDeviceEvents,
	}
}

func auditLogsHandler(store domain.DeviceStore) Handler {
	return Handler{
		Definition: domain.ToolDefinition{
			Name:        domain.ToolAuditLogs,
			Description: "List workspace audit log entries covering API calls and configuration changes",
			InputSchema: listSchema(map[string]domain.SchemaProperty{
				"workspace_id": {Type: "string", Description: "Workspace identifier (UUID)"},
			}, "workspace_id"),
		},
		ListKey: "audit_logs",
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			since := time.Now().Add(-defaultLookback)
			logs, err := store.AuditLogs(ctx, stringArg(args, "workspace_id"), since, intArg(args, "limit"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"audit_logs": anySlice(logs)}, nil
		},
		Summarize: summarizeAuditLogs,
	}
}

func searchLogsHandler(searcher domain.LogSearcher) Handler {
	return Handler{
		Definition: domain.ToolDefinition{
			Name:        domain.ToolSearchLogs,
			Description: "Search service-side logs for traces mentioning a device, code, or request id",
			InputSchema: listSchema(map[string]domain.SchemaProperty{
				"query": {Type: "string", Description: "Log search query"},
			}, "query"),
		},
		ListKey: "log_entries",
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			since := time.Now().Add(-defaultLookback)
			entries, err := searcher.Search(ctx, stringArg(args, "query"), since, intArg(args, "limit"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"log_entries": anySlice(entries)}, nil
		},
		Summarize: summarizeSearchLogs,
	}
}

func adminLinksHandler(linker domain.AdminLinker) Handler {
	return Handler{
		Definition: domain.ToolDefinition{
			Name:        domain.ToolAdminLinks,
			Description: "Generate admin console links for the entities observed during this investigation",
			InputSchema: domain.ToolSchema{
				Type: "object",
				Properties: map[string]domain.SchemaProperty{
					"device_id":       {Type: "string", Description: "Device identifier"},
					"workspace_id":    {Type: "string", Description: "Workspace identifier"},
					"access_codes":    {Type: "array", Description: "Access code identifiers"},
					"action_attempts": {Type: "array", Description: "Action attempt identifiers"},
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			links, err := linker.Links(ctx, args)
			if err != nil {
				return nil, err
			}
			out := make([]any, 0, len(links))
			for _, link := range links {
				out = append(out, map[string]any{
					"title":       link.Title,
					"url":         link.URL,
					"description": link.Description,
				})
			}
			return map[string]any{"admin_links": out}, nil
		},
		Summarize: summarizeAdminLinks,
	}
}

// Argument and payload helpers.

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func anySlice(records []map[string]any) []any {
	out := make([]any, 0, len(records))
	for _, record := range records {
		out = append(out, record)
	}
	return out
}

func recordsOf(raw map[string]any, key string) []map[string]any {
	switch value := raw[key].(type) {
	case []map[string]any:
		return value
	case []any:
		records := make([]map[string]any, 0, len(value))
		for _, item := range value {
			if record, ok := item.(map[string]any); ok {
				records = append(records, record)
			}
		}
		return records
	default:
		return nil
	}
}

// Per-tool summarizers. These keep the conversation small while preserving
// the specific names and counts the final analysis needs.

func summarizeDeviceInfo(raw map[string]any) string {
	deviceType, _ := raw["device_type"].(string)
	if deviceType == "" {
		deviceType = "unknown"
	}
	parts := []string{fmt.Sprintf("device type %s", deviceType)}

	if props, ok := raw["properties"].(map[string]any); ok {
		if online, ok := props["online"].(bool); ok {
			if online {
				parts = append(parts, "online")
			} else {
				parts = append(parts, "OFFLINE")
			}
		}
		if battery, ok := props["battery_level"].(float64); ok {
			parts = append(parts, fmt.Sprintf("battery %.0f%%", battery*100))
		}
	}
	return "Device: " + strings.Join(parts, ", ")
}

func summarizeAccessCodes(raw map[string]any) string {
	codes := recordsOf(raw, "access_codes")
	if len(codes) == 0 {
		return "No access codes on device"
	}

	var unmanaged []string
	for _, code := range codes {
		if managed, ok := code["is_managed"].(bool); ok && !managed {
			name, _ := code["name"].(string)
			if name == "" {
				name, _ = code["access_code_id"].(string)
			}
			unmanaged = append(unmanaged, name)
		}
	}

	summary := fmt.Sprintf("%d access codes on device", len(codes))
	if len(unmanaged) > 0 {
		summary += fmt.Sprintf("; %d unmanaged: %s", len(unmanaged), strings.Join(unmanaged, ", "))
	}
	return summary
}

func summarizeActionAttempts(raw map[string]any) string {
	attempts := recordsOf(raw, "action_attempts")
	if len(attempts) == 0 {
		return "No recent action attempts"
	}

	failed := 0
	var lastError string
	for _, attempt := range attempts {
		status, _ := attempt["status"].(string)
		if status == "error" || status == "failed" {
			failed++
			if msg, ok := attempt["error_message"].(string); ok && lastError == "" {
				lastError = msg
			}
		}
	}

	summary := fmt.Sprintf("%d action attempts, %d failed", len(attempts), failed)
	if lastError != "" {
		summary += fmt.Sprintf("; latest error: %s", lastError)
	}
	return summary
}

func summarizeDeviceEvents(raw map[string]any) string {
	events := recordsOf(raw, "device_events")
	if len(events) == 0 {
		return "No recent device events"
	}

	byType := make(map[string]int)
	for _, event := range events {
		if eventType, ok := event["event_type"].(string); ok {
			byType[eventType]++
		}
	}

	parts := make([]string, 0, len(byType))
	for eventType, count := range byType {
		parts = append(parts, fmt.Sprintf("%s x%d", eventType, count))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d device events: %s", len(events), strings.Join(parts, ", "))
}

func summarizeAuditLogs(raw map[string]any) string {
	logs := recordsOf(raw, "audit_logs")
	if len(logs) == 0 {
		return "No audit log entries in the window"
	}
	return fmt.Sprintf("%d audit log entries in the window", len(logs))
}

func summarizeSearchLogs(raw map[string]any) string {
	entries := recordsOf(raw, "log_entries")
	if len(entries) == 0 {
		return "No matching service log entries"
	}

	errors := 0
	for _, entry := range entries {
		if level, _ := entry["level"].(string); level == "ERROR" {
			errors++
		}
	}
	return fmt.Sprintf("%d service log entries matched, %d at error level", len(entries), errors)
}

func summarizeAdminLinks(raw map[string]any) string {
	links := recordsOf(raw, "admin_links")
	if len(links) == 0 {
		return "No admin links generated"
	}

	var titles []string
	for _, link := range links {
		if title, ok := link["title"].(string); ok {
			titles = append(titles, title)
		}
	}
	return fmt.Sprintf("%d admin links: %s", len(links), strings.Join(titles, ", "))
}
