package investigation

import (
	"fmt"
	"time"
)

// BudgetConfig holds the immutable resource limits for one investigation.
// Build values through NewBudgetConfig or a preset so the invariants hold.
type BudgetConfig struct {
	MaxToolRounds         int
	MaxToolsPerRound      int
	MaxTotalTools         int
	ContextBudgetTokens   int
	MaxConversationLength int
	ToolTimeout           time.Duration
	InvestigationTimeout  time.Duration
	DefaultQueryLimit     int
	MaxQueryLimit         int
}

// NewBudgetConfig validates and returns a budget configuration.
func NewBudgetConfig(cfg BudgetConfig) (BudgetConfig, error) {
	if cfg.MaxToolRounds < 1 {
		return BudgetConfig{}, fmt.Errorf("max tool rounds must be at least 1, got %d", cfg.MaxToolRounds)
	}
	if cfg.MaxToolsPerRound < 1 {
		return BudgetConfig{}, fmt.Errorf("max tools per round must be at least 1, got %d", cfg.MaxToolsPerRound)
	}
	if cfg.MaxTotalTools < 1 {
		return BudgetConfig{}, fmt.Errorf("max total tools must be at least 1, got %d", cfg.MaxTotalTools)
	}
	if cfg.MaxTotalTools > cfg.MaxToolRounds*cfg.MaxToolsPerRound {
		return BudgetConfig{}, fmt.Errorf(
			"max total tools %d exceeds rounds*per-round capacity %d",
			cfg.MaxTotalTools, cfg.MaxToolRounds*cfg.MaxToolsPerRound)
	}
	if cfg.ContextBudgetTokens < 1 {
		return BudgetConfig{}, fmt.Errorf("context budget tokens must be positive, got %d", cfg.ContextBudgetTokens)
	}
	if cfg.MaxConversationLength < 1 {
		return BudgetConfig{}, fmt.Errorf("max conversation length must be positive, got %d", cfg.MaxConversationLength)
	}
	if cfg.ToolTimeout <= 0 {
		return BudgetConfig{}, fmt.Errorf("tool timeout must be positive, got %s", cfg.ToolTimeout)
	}
	if cfg.InvestigationTimeout <= cfg.ToolTimeout {
		return BudgetConfig{}, fmt.Errorf(
			"investigation timeout %s must exceed tool timeout %s",
			cfg.InvestigationTimeout, cfg.ToolTimeout)
	}
	if cfg.DefaultQueryLimit < 1 {
		cfg.DefaultQueryLimit = 10
	}
	if cfg.MaxQueryLimit < cfg.DefaultQueryLimit {
		cfg.MaxQueryLimit = 100
	}
	return cfg, nil
}

// DefaultBudget returns the standard limits for interactive use.
func DefaultBudget() BudgetConfig {
	return BudgetConfig{
		MaxToolRounds:         3,
		MaxToolsPerRound:      5,
		MaxTotalTools:         10,
		ContextBudgetTokens:   50000,
		MaxConversationLength: 20,
		ToolTimeout:           30 * time.Second,
		InvestigationTimeout:  5 * time.Minute,
		DefaultQueryLimit:     10,
		MaxQueryLimit:         100,
	}
}

// ProductionBudget returns tighter limits for cost-sensitive deployments.
func ProductionBudget() BudgetConfig {
	return BudgetConfig{
		MaxToolRounds:         2,
		MaxToolsPerRound:      3,
		MaxTotalTools:         6,
		ContextBudgetTokens:   30000,
		MaxConversationLength: 15,
		ToolTimeout:           20 * time.Second,
		InvestigationTimeout:  3 * time.Minute,
		DefaultQueryLimit:     10,
		MaxQueryLimit:         50,
	}
}

// DebugBudget returns generous limits for offline debugging sessions.
func DebugBudget() BudgetConfig {
	return BudgetConfig{
		MaxToolRounds:         5,
		MaxToolsPerRound:      8,
		MaxTotalTools:         20,
		ContextBudgetTokens:   100000,
		MaxConversationLength: 40,
		ToolTimeout:           60 * time.Second,
		InvestigationTimeout:  10 * time.Minute,
		DefaultQueryLimit:     25,
		MaxQueryLimit:         200,
	}
}

// BudgetForPreset maps a preset name to its configuration.
func BudgetForPreset(name string) (BudgetConfig, error) {
	switch name {
	case "", "default":
		return DefaultBudget(), nil
	case "production":
		return ProductionBudget(), nil
	case "debug":
		return DebugBudget(), nil
	default:
		return BudgetConfig{}, fmt.Errorf("unknown budget preset: %s", name)
	}
}

// BudgetState tracks resource consumption across one investigation. It is
// owned by a single investigation goroutine and is not safe for concurrent
// use.
type BudgetState struct {
	config BudgetConfig

	ToolRoundsUsed       int
	ToolsUsedThisRound   int
	TotalToolsUsed       int
	ConversationMessages int
	StartTime            time.Time
}

// NewBudgetState returns a fresh state against the given limits.
func NewBudgetState(cfg BudgetConfig) *BudgetState {
	return &BudgetState{
		config:    cfg,
		StartTime: time.Now(),
	}
}

// Config returns the limits this state is tracked against.
func (s *BudgetState) Config() BudgetConfig {
	return s.config
}

// CanStartNewRound reports whether another tool round may begin.
func (s *BudgetState) CanStartNewRound() bool {
	return s.ToolRoundsUsed < s.config.MaxToolRounds &&
		s.TotalToolsUsed < s.config.MaxTotalTools &&
		!s.TimeoutExceeded()
}

// CanContinueRound reports whether another tool may execute in the current
// round.
func (s *BudgetState) CanContinueRound() bool {
	return s.ToolsUsedThisRound < s.config.MaxToolsPerRound &&
		s.TotalToolsUsed < s.config.MaxTotalTools &&
		!s.TimeoutExceeded()
}

// StartNewRound opens a new tool round, resetting the per-round counter.
func (s *BudgetState) StartNewRound() {
	s.ToolRoundsUsed++
	s.ToolsUsedThisRound = 0
}

// RecordToolUse counts one executed tool against both the per-round and
// total budgets.
func (s *BudgetState) RecordToolUse() {
	s.ToolsUsedThisRound++
	s.TotalToolsUsed++
}

// RecordMessage counts one conversation message.
func (s *BudgetState) RecordMessage() {
	s.ConversationMessages++
}

// ConversationFull reports whether the conversation has hit its length cap.
func (s *BudgetState) ConversationFull() bool {
	return s.ConversationMessages >= s.config.MaxConversationLength
}

// TimeoutExceeded reports whether the wall-clock deadline has passed.
func (s *BudgetState) TimeoutExceeded() bool {
	return time.Since(s.StartTime) >= s.config.InvestigationTimeout
}

// RemainingRounds returns how many tool rounds may still start.
func (s *BudgetState) RemainingRounds() int {
	return s.config.MaxToolRounds - s.ToolRoundsUsed
}

// RemainingTools returns how many tool executions remain in the total budget.
func (s *BudgetState) RemainingTools() int {
	return s.config.MaxTotalTools - s.TotalToolsUsed
}

// RemainingThisRound returns how many tools may still run in the open round.
func (s *BudgetState) RemainingThisRound() int {
	return s.config.MaxToolsPerRound - s.ToolsUsedThisRound
}

// Summary returns a compact view of consumption for logging.
func (s *BudgetState) Summary() map[string]any {
	return map[string]any{
		"tool_rounds_used":      s.ToolRoundsUsed,
		"tools_used_this_round": s.ToolsUsedThisRound,
		"total_tools_used":      s.TotalToolsUsed,
		"conversation_messages": s.ConversationMessages,
		"elapsed_seconds":       time.Since(s.StartTime).Seconds(),
	}
}
