package domain

import (
	"time"
)

// QuestionType classifies what kind of support question a query is asking.
type QuestionType string

const (
	QuestionAccessCode      QuestionType = "access_code"
	QuestionConnectivity    QuestionType = "connectivity"
	QuestionAction          QuestionType = "action"
	QuestionAccountIssue    QuestionType = "account_issue"
	QuestionTroubleshooting QuestionType = "troubleshooting"
	QuestionAPIHelp         QuestionType = "api_help"
	QuestionDeviceBehavior  QuestionType = "device_behavior"
)

// ParsedQuery is the structured extraction from a free-text support query.
// It is produced once per investigation and never mutated afterwards.
type ParsedQuery struct {
	DeviceIDs           []string     `json:"device_ids"`
	AccessCodes         []string     `json:"access_codes"`
	WorkspaceIDs        []string     `json:"workspace_ids"`
	ConnectedAccountIDs []string     `json:"connected_account_ids,omitempty"`
	ActionAttemptIDs    []string     `json:"action_attempt_ids,omitempty"`
	TimeReferences      []string     `json:"time_references,omitempty"`
	QuestionType        QuestionType `json:"question_type"`
	DeviceTypes         []string     `json:"device_types,omitempty"`
	Operations          []string     `json:"operations,omitempty"`
	Confidence          float64      `json:"confidence"`
	Summary             string       `json:"summary"`
}

// PrimaryDeviceID returns the first device identifier mentioned in the query,
// or an empty string when none was found.
func (p *ParsedQuery) PrimaryDeviceID() string {
	if len(p.DeviceIDs) == 0 {
		return ""
	}
	return p.DeviceIDs[0]
}

// PrimaryWorkspaceID returns the first workspace identifier mentioned in the
// query, or an empty string when none was found.
func (p *ParsedQuery) PrimaryWorkspaceID() string {
	if len(p.WorkspaceIDs) == 0 {
		return ""
	}
	return p.WorkspaceIDs[0]
}

// Message is one turn of the investigation conversation.
type Message struct {
	Role        string       `json:"role"` // "system", "user", "assistant"
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolOutput `json:"tool_results,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ToolCall is a tool invocation requested by the language model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}

// ToolOutput carries the result of one tool call back to the language model,
// correlated with the requesting call by its ID.
type ToolOutput struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Pagination describes whether a list-shaped tool result was truncated.
// HasMore is established by probing for one more record than requested
// rather than trusting the backend to self-report.
type Pagination struct {
	CurrentCount       int  `json:"current_count"`
	HasMore            bool `json:"has_more"`
	SuggestedNextLimit int  `json:"suggested_next_limit,omitempty"`
}

// ToolSchema describes the parameters a tool accepts, in the shape the
// language-model tool protocol expects. The Required list is authoritative
// when validating requested arguments before dispatch.
type ToolSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty is one parameter in a tool schema.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
}

// ToolDefinition is the static catalog entry handed to the language model.
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema ToolSchema `json:"input_schema"`
}

// AdminLink is a generated admin console URL relevant to an investigation.
type AdminLink struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// InvestigationResult is the structured payload returned to the caller for
// every investigation, including limit-stopped and failed ones.
type InvestigationResult struct {
	ID            string       `json:"id"`
	OriginalQuery string       `json:"original_query"`
	ParsedQuery   *ParsedQuery `json:"parsed_query"`
	Investigation string       `json:"investigation"`
	RawAnalysis   string       `json:"raw_analysis"`
	Debug         *DebugInfo   `json:"debug,omitempty"`
}

// DebugInfo is attached to the result only when debug mode is enabled.
type DebugInfo struct {
	LogSummary string `json:"log_summary"`
	LogExport  string `json:"log_export"`
}

// ChatResponse is one language-model turn. Exactly one of Content and
// ToolCalls is populated; the client boundary normalizes conflated provider
// responses before they reach the investigation driver.
type ChatResponse struct {
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Usage      TokenUsage `json:"usage"`
	StopReason string     `json:"stop_reason,omitempty"`
}

// HasToolCalls reports whether the model requested tool invocations.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// TokenUsage tracks token consumption for one model turn.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatOptions tunes a single language-model request.
type ChatOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	System      string   `json:"system,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}
