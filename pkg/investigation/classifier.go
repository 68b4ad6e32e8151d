package investigation

import (
	"fmt"

	"github.com/lockwise/support-agent/pkg/domain"
)

// ToolResult is the classified judgment of one tool execution. Instances are
// immutable once created; re-running a tool produces a new ToolResult that
// replaces the previous entry under the same tool name.
type ToolResult struct {
	ToolName      string
	Success       bool
	DataFound     bool
	NeedsFollowup bool
	KeyFindings   []string
	Raw           map[string]any
}

// classifyRule extracts the tool-specific data-found judgment and findings
// from a well-formed, non-error payload.
type classifyRule func(raw map[string]any) (dataFound bool, findings []string)

// classifyRules maps each tool to its classification rule. Tools absent from
// the table get the generic list-payload treatment via listPayloadKeys.
var classifyRules = map[string]classifyRule{
	domain.ToolDeviceInfo:           classifyDeviceInfo,
	domain.ToolThirdPartyDeviceInfo: classifyDeviceInfo,
	domain.ToolAccessCodes:          classifyAccessCodes,
	domain.ToolActionAttempts:       classifyActionAttempts,
	domain.ToolDeviceEvents:         classifyDeviceEvents,
	domain.ToolAuditLogs:            classifyAuditLogs,
	domain.ToolSearchLogs:           classifySearchLogs,
	domain.ToolAdminLinks:           classifyAdminLinks,
}

// listPayloadKeys maps list-shaped tools to the key their records live under.
var listPayloadKeys = map[string]string{
	domain.ToolAccessCodes:    "access_codes",
	domain.ToolActionAttempts: "action_attempts",
	domain.ToolDeviceEvents:   "device_events",
	domain.ToolAuditLogs:      "audit_logs",
	domain.ToolSearchLogs:     "log_entries",
	domain.ToolAdminLinks:     "admin_links",
}

// Classify turns a raw tool payload into a ToolResult. It is a pure function
// and never panics: malformed payloads degrade to a failed result with a
// diagnostic finding.
func Classify(toolName string, raw any) ToolResult {
	payload, ok := raw.(map[string]any)
	if !ok {
		return ToolResult{
			ToolName:    toolName,
			KeyFindings: []string{fmt.Sprintf("malformed tool result payload (%T)", raw)},
		}
	}

	if errMsg, found := payload["error"]; found {
		return ToolResult{
			ToolName:    toolName,
			Raw:         payload,
			KeyFindings: []string{fmt.Sprintf("Error: %v", errMsg)},
		}
	}

	result := ToolResult{
		ToolName: toolName,
		Success:  true,
		Raw:      payload,
	}

	rule, known := classifyRules[toolName]
	if !known {
		rule = classifyGeneric
	}
	result.DataFound, result.KeyFindings = rule(payload)

	if page, found := pagination(payload); found && page.HasMore {
		result.NeedsFollowup = true
		result.KeyFindings = append(result.KeyFindings,
			fmt.Sprintf("More records available (showing %d)", page.CurrentCount))
	}

	return result
}

// pagination extracts the pagination sub-record attached by the orchestrator.
func pagination(payload map[string]any) (domain.Pagination, bool) {
	sub, ok := payload["pagination"].(map[string]any)
	if !ok {
		return domain.Pagination{}, false
	}
	page := domain.Pagination{
		CurrentCount:       asInt(sub["current_count"]),
		SuggestedNextLimit: asInt(sub["suggested_next_limit"]),
	}
	page.HasMore, _ = sub["has_more"].(bool)
	return page, true
}

func classifyDeviceInfo(raw map[string]any) (bool, []string) {
	var findings []string

	deviceType, _ := raw["device_type"].(string)
	dataFound := deviceType != "" && deviceType != "unknown"
	if dataFound {
		findings = append(findings, fmt.Sprintf("Device type: %s", deviceType))
	}

	props, _ := raw["properties"].(map[string]any)
	if online, ok := props["online"].(bool); ok {
		if online {
			findings = append(findings, "Device is online")
		} else {
			findings = append(findings, "Device is offline")
		}
	}
	if battery, ok := asFloat(props["battery_level"]); ok && battery < 0.2 {
		findings = append(findings, fmt.Sprintf("Low battery: %.0f%%", battery*100))
	}
	if locked, ok := props["locked"].(bool); ok {
		if locked {
			findings = append(findings, "Lock is currently locked")
		} else {
			findings = append(findings, "Lock is currently unlocked")
		}
	}

	return dataFound, findings
}

func classifyAccessCodes(raw map[string]any) (bool, []string) {
	codes := listOf(raw, "access_codes")
	findings := []string{fmt.Sprintf("%d access codes found", len(codes))}

	unmanaged := 0
	for _, code := range codes {
		if managed, ok := code["is_managed"].(bool); ok && !managed {
			unmanaged++
		}
	}
	if unmanaged > 0 {
		findings = append(findings, fmt.Sprintf("%d unmanaged access codes found", unmanaged))
	}

	return len(codes) > 0, findings
}

func classifyActionAttempts(raw map[string]any) (bool, []string) {
	attempts := listOf(raw, "action_attempts")

	failed, succeeded := 0, 0
	for _, attempt := range attempts {
		status, _ := attempt["status"].(string)
		switch status {
		case "error", "failed":
			failed++
		case "success":
			succeeded++
		}
	}

	findings := []string{
		fmt.Sprintf("%d failed action attempts", failed),
		fmt.Sprintf("%d successful action attempts", succeeded),
	}
	return len(attempts) > 0, findings
}

func classifyDeviceEvents(raw map[string]any) (bool, []string) {
	events := listOf(raw, "device_events")
	findings := []string{fmt.Sprintf("%d device events found", len(events))}

	disconnects := 0
	for _, event := range events {
		if eventType, _ := event["event_type"].(string); eventType == "device.disconnected" {
			disconnects++
		}
	}
	if disconnects > 0 {
		findings = append(findings, fmt.Sprintf("%d disconnect events", disconnects))
	}

	return len(events) > 0, findings
}

func classifyAuditLogs(raw map[string]any) (bool, []string) {
	logs := listOf(raw, "audit_logs")
	return len(logs) > 0, []string{fmt.Sprintf("%d audit log entries found", len(logs))}
}

func classifySearchLogs(raw map[string]any) (bool, []string) {
	entries := listOf(raw, "log_entries")
	findings := []string{fmt.Sprintf("%d log entries matched", len(entries))}

	errors := 0
	for _, entry := range entries {
		if level, _ := entry["level"].(string); level == "ERROR" {
			errors++
		}
	}
	if errors > 0 {
		findings = append(findings, fmt.Sprintf("%d error-level log entries", errors))
	}

	return len(entries) > 0, findings
}

func classifyAdminLinks(raw map[string]any) (bool, []string) {
	links := listOf(raw, "admin_links")
	return len(links) > 0, []string{fmt.Sprintf("%d admin links generated", len(links))}
}

func classifyGeneric(raw map[string]any) (bool, []string) {
	return len(raw) > 0, nil
}

// listOf extracts a list of records under the given key, tolerating both
// []map[string]any and []any element shapes.
func listOf(raw map[string]any, key string) []map[string]any {
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

func asInt(value any) int {
	switch v := value.(type) {
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

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
