package domain

// Canonical tool names shared by the selector, orchestrator, and classifier.
const (
	ToolDeviceInfo           = "get_device_info"
	ToolThirdPartyDeviceInfo = "get_third_party_device_info"
	ToolAccessCodes          = "get_access_codes"
	ToolActionAttempts       = "get_action_attempts"
	ToolDeviceEvents         = "get_device_events"
	ToolAuditLogs            = "get_audit_logs"
	ToolSearchLogs           = "search_logs"
	ToolAdminLinks           = "get_admin_links"
)
