package investigation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lockwise/support-agent/pkg/domain"
	"github.com/lockwise/support-agent/pkg/observability"
)

// Phase is a coarse round-count-derived label used for logging and
// heuristics. It never gates a transition.
type Phase string

const (
	PhaseInitial    Phase = "initial"
	PhaseGathering  Phase = "gathering"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseDeepDive   Phase = "deep_dive"
	PhaseFinalizing Phase = "finalizing"
)

// phaseForRound derives the observational phase from the round counter.
func phaseForRound(round int) Phase {
	switch {
	case round <= 0:
		return PhaseInitial
	case round == 1:
		return PhaseGathering
	case round == 2:
		return PhaseAnalyzing
	default:
		return PhaseDeepDive
	}
}

// Selector decides which tools to call next based on the issue category and
// the accumulated classified results. One Selector serves exactly one
// investigation and is accessed from one goroutine.
type Selector struct {
	results map[string]ToolResult
	phase   Phase
	logger  *observability.StructuredLogger
}

// NewSelector returns a fresh selector for one investigation.
func NewSelector(logger *observability.StructuredLogger) *Selector {
	return &Selector{
		results: make(map[string]ToolResult),
		phase:   PhaseInitial,
		logger:  logger.WithComponent("selector"),
	}
}

// Phase returns the current observational phase.
func (s *Selector) Phase() Phase {
	return s.phase
}

// Results returns the accumulated classified results keyed by tool name.
// The returned map is the selector's working memory; callers must not mutate it.
func (s *Selector) Results() map[string]ToolResult {
	return s.results
}

var (
	accessCodeKeywords   = []string{"access code", "pin code", "pin ", "keypad code", "entry code", "unmanaged code"}
	connectivityKeywords = []string{"offline", "disconnect", "unreachable", "not responding", "connection", "wifi", "wi-fi", "online"}
	actionKeywords       = []string{"lock", "unlock", "won't lock", "failed to", "action attempt", "command", "remote"}
)

// SelectInitialTools picks the first round of tools from the parsed query and
// the raw query text. A baseline device lookup always comes first; the issue
// category adds its tools after it, first category match wins.
func (s *Selector) SelectInitialTools(ctx context.Context, parsed *domain.ParsedQuery, rawQuery string) []string {
	lower := strings.ToLower(rawQuery)

	var tools []string
	switch {
	case s.isAccessCodeIssue(parsed, lower):
		tools = []string{domain.ToolDeviceInfo, domain.ToolAccessCodes, domain.ToolAuditLogs}
	case s.isConnectivityIssue(parsed, lower):
		tools = []string{domain.ToolDeviceInfo, domain.ToolDeviceEvents}
	case s.isActionIssue(parsed, lower):
		tools = []string{domain.ToolDeviceInfo, domain.ToolActionAttempts}
	default:
		tools = []string{domain.ToolDeviceInfo, domain.ToolActionAttempts, domain.ToolDeviceEvents}
	}

	s.logger.Info(ctx, "selected initial tools", map[string]any{
		"tools":         tools,
		"question_type": string(parsed.QuestionType),
	})
	return tools
}

func (s *Selector) isAccessCodeIssue(parsed *domain.ParsedQuery, lower string) bool {
	if parsed.QuestionType == domain.QuestionAccessCode || len(parsed.AccessCodes) > 0 {
		return true
	}
	return containsAny(lower, accessCodeKeywords)
}

func (s *Selector) isConnectivityIssue(parsed *domain.ParsedQuery, lower string) bool {
	if parsed.QuestionType == domain.QuestionConnectivity {
		return true
	}
	return containsAny(lower, connectivityKeywords)
}

func (s *Selector) isActionIssue(parsed *domain.ParsedQuery, lower string) bool {
	if parsed.QuestionType == domain.QuestionAction {
		return true
	}
	return containsAny(lower, actionKeywords)
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// SelectFollowupTools reclassifies the round's raw results into working
// memory, advances the phase, and returns the next tools to call, capped to
// the remaining per-round budget. Pagination re-issues come first, then
// analytical gap-filling, then the admin-links tool as the final candidate.
func (s *Selector) SelectFollowupTools(ctx context.Context, roundResults map[string]any, state *BudgetState, parsed *domain.ParsedQuery) []string {
	for toolName, raw := range roundResults {
		s.results[toolName] = Classify(toolName, raw)
	}
	s.phase = phaseForRound(state.ToolRoundsUsed)

	if !state.CanContinueRound() {
		return nil
	}

	var candidates []string
	seen := make(map[string]bool)
	add := func(tool string) {
		if !seen[tool] {
			seen[tool] = true
			candidates = append(candidates, tool)
		}
	}

	// Pagination follow-ups first: re-issue the same tool with a larger limit.
	for _, toolName := range sortedToolNames(s.results) {
		if s.results[toolName].NeedsFollowup {
			add(toolName)
		}
	}

	// Analytical gap-filling.
	if device, ok := s.results[domain.ToolDeviceInfo]; ok && !device.Success {
		add(domain.ToolThirdPartyDeviceInfo)
	}
	if s.actionFailuresPresent() {
		if _, fetched := s.results[domain.ToolAuditLogs]; !fetched {
			add(domain.ToolAuditLogs)
		}
	}
	if codes, ok := s.results[domain.ToolAccessCodes]; ok && codes.DataFound {
		if _, fetched := s.results[domain.ToolDeviceEvents]; !fetched {
			add(domain.ToolDeviceEvents)
		}
	}

	// Admin links always trail the list if never used.
	if _, used := s.results[domain.ToolAdminLinks]; !used {
		add(domain.ToolAdminLinks)
	}

	remaining := state.RemainingThisRound()
	if len(candidates) > remaining {
		candidates = candidates[:remaining]
	}

	s.logger.Info(ctx, "selected followup tools", map[string]any{
		"tools": candidates,
		"phase": string(s.phase),
	})
	return candidates
}

func (s *Selector) actionFailuresPresent() bool {
	attempts, ok := s.results[domain.ToolActionAttempts]
	if !ok || attempts.Raw == nil {
		return false
	}
	for _, attempt := range listOf(attempts.Raw, "action_attempts") {
		status, _ := attempt["status"].(string)
		if status == "error" || status == "failed" {
			return true
		}
	}
	return false
}

// ShouldContinue decides whether another round is warranted. Decision order:
// hard budget stop, then sufficiency, then critical failures, then a default
// continue. Sufficiency is checked before critical failures on purpose: a
// sufficient-but-partially-failed investigation still stops.
func (s *Selector) ShouldContinue(state *BudgetState) (bool, string) {
	if !state.CanStartNewRound() {
		return false, "limits reached"
	}
	if s.hasSufficientData() {
		return false, "sufficient data"
	}
	if s.hasCriticalFailures() {
		return true, "critical failures"
	}
	return true, "incomplete, continuing"
}

// hasSufficientData holds when device info is present and at least two
// distinct tools returned data.
func (s *Selector) hasSufficientData() bool {
	device, ok := s.results[domain.ToolDeviceInfo]
	if !ok || !device.DataFound {
		return false
	}
	withData := 0
	for toolName, result := range s.results {
		if toolName != domain.ToolDeviceInfo && result.DataFound {
			withData++
		}
	}
	return withData >= 2
}

// hasCriticalFailures holds when a load-bearing lookup failed outright.
func (s *Selector) hasCriticalFailures() bool {
	for _, toolName := range []string{domain.ToolDeviceInfo, domain.ToolAccessCodes} {
		if result, ok := s.results[toolName]; ok && !result.Success {
			return true
		}
	}
	return false
}

// DataQuality scores the investigation's evidence. Purely advisory.
func (s *Selector) DataQuality() string {
	if len(s.results) == 0 {
		return "no_data"
	}

	succeeded, withData := 0, 0
	for _, result := range s.results {
		if result.Success {
			succeeded++
		}
		if result.DataFound {
			withData++
		}
	}
	successRate := float64(succeeded) / float64(len(s.results))

	switch {
	case successRate >= 0.9 && withData >= 3:
		return "excellent"
	case successRate >= 0.7 && withData >= 2:
		return "good"
	case successRate >= 0.5 && withData >= 1:
		return "fair"
	case withData > 0:
		return "poor"
	default:
		return "no_data"
	}
}

// Summary returns a compact view of working memory for logging.
func (s *Selector) Summary() map[string]any {
	toolNames := sortedToolNames(s.results)
	findings := 0
	for _, result := range s.results {
		findings += len(result.KeyFindings)
	}
	return map[string]any{
		"phase":         string(s.phase),
		"tools_used":    toolNames,
		"finding_count": findings,
		"data_quality":  s.DataQuality(),
	}
}

// KeyFindings returns all accumulated findings in stable tool-name order.
func (s *Selector) KeyFindings() []string {
	var findings []string
	for _, toolName := range sortedToolNames(s.results) {
		findings = append(findings, s.results[toolName].KeyFindings...)
	}
	return findings
}

// CrossToolInsights correlates accumulated results across tools, surfacing
// patterns no single tool result shows on its own. Fed into the final
// analysis prompt alongside the per-tool findings.
func (s *Selector) CrossToolInsights() []string {
	var insights []string

	unmanaged := s.unmanagedCodeCount()
	if unmanaged > 0 && s.auditManagementChangesPresent() {
		insights = append(insights, fmt.Sprintf("Pattern: %d unmanaged codes alongside an audit trail of code management changes", unmanaged))
	}
	if unmanaged > 0 && s.actionFailuresPresent() {
		insights = append(insights, "Correlation: failed actions may have left unmanaged codes on the device")
	}
	return insights
}

func (s *Selector) unmanagedCodeCount() int {
	codes, ok := s.results[domain.ToolAccessCodes]
	if !ok || codes.Raw == nil {
		return 0
	}
	count := 0
	for _, code := range listOf(codes.Raw, "access_codes") {
		if managed, ok := code["is_managed"].(bool); ok && !managed {
			count++
		}
	}
	return count
}

func (s *Selector) auditManagementChangesPresent() bool {
	logs, ok := s.results[domain.ToolAuditLogs]
	if !ok || logs.Raw == nil {
		return false
	}
	for _, entry := range listOf(logs.Raw, "audit_logs") {
		if action, _ := entry["action"].(string); strings.Contains(action, "access_code") {
			return true
		}
	}
	return false
}

func sortedToolNames(results map[string]ToolResult) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
