package investigation

import (
	"testing"
	"time"
)

func validBudget() BudgetConfig {
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

func TestNewBudgetConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BudgetConfig)
		wantErr bool
	}{
		{
			name:   "valid config",
			mutate: func(c *BudgetConfig) {},
		},
		{
			name:    "zero rounds",
			mutate:  func(c *BudgetConfig) { c.MaxToolRounds = 0 },
			wantErr: true,
		},
		{
			name:    "zero tools per round",
			mutate:  func(c *BudgetConfig) { c.MaxToolsPerRound = 0 },
			wantErr: true,
		},
		{
			name:    "total exceeds capacity",
			mutate:  func(c *BudgetConfig) { c.MaxTotalTools = 16 },
			wantErr: true,
		},
		{
			name:    "total equals capacity",
			mutate:  func(c *BudgetConfig) { c.MaxTotalTools = 15 },
			wantErr: false,
		},
		{
			name: "investigation timeout not above tool timeout",
			mutate: func(c *BudgetConfig) {
				c.InvestigationTimeout = c.ToolTimeout
			},
			wantErr: true,
		},
		{
			name:    "zero context budget",
			mutate:  func(c *BudgetConfig) { c.ContextBudgetTokens = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBudget()
			tt.mutate(&cfg)
			_, err := NewBudgetConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewBudgetConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBudgetPresetsAreValid(t *testing.T) {
	for _, name := range []string{"default", "production", "debug"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := BudgetForPreset(name)
			if err != nil {
				t.Fatalf("BudgetForPreset(%q) error: %v", name, err)
			}
			if _, err := NewBudgetConfig(cfg); err != nil {
				t.Errorf("preset %q fails validation: %v", name, err)
			}
		})
	}

	if _, err := BudgetForPreset("aggressive"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestBudgetStateRoundAccounting(t *testing.T) {
	cfg := validBudget()
	state := NewBudgetState(cfg)

	if !state.CanStartNewRound() {
		t.Fatal("fresh state should allow a round")
	}

	state.StartNewRound()
	if state.ToolRoundsUsed != 1 || state.ToolsUsedThisRound != 0 {
		t.Errorf("after StartNewRound: rounds=%d thisRound=%d", state.ToolRoundsUsed, state.ToolsUsedThisRound)
	}

	for i := 0; i < cfg.MaxToolsPerRound; i++ {
		if !state.CanContinueRound() {
			t.Fatalf("round should allow tool %d", i+1)
		}
		state.RecordToolUse()
	}
	if state.CanContinueRound() {
		t.Error("round should be exhausted at per-round limit")
	}

	state.StartNewRound()
	if state.ToolsUsedThisRound != 0 {
		t.Error("per-round counter should reset on new round")
	}
	if state.TotalToolsUsed != cfg.MaxToolsPerRound {
		t.Errorf("total should persist across rounds, got %d", state.TotalToolsUsed)
	}
}

func TestBudgetStateTotalCapsRounds(t *testing.T) {
	cfg := validBudget()
	cfg.MaxToolRounds = 10
	cfg.MaxTotalTools = 3
	cfg.MaxToolsPerRound = 5

	state := NewBudgetState(cfg)
	state.StartNewRound()
	for i := 0; i < 3; i++ {
		state.RecordToolUse()
	}

	if state.CanContinueRound() {
		t.Error("total budget exhausted, round must not continue")
	}
	if state.CanStartNewRound() {
		t.Error("total budget exhausted, no new round regardless of rounds used")
	}
}

func TestBudgetStateInvariantThisRoundLEQTotal(t *testing.T) {
	state := NewBudgetState(validBudget())
	for round := 0; round < 3; round++ {
		state.StartNewRound()
		for i := 0; i < 3; i++ {
			state.RecordToolUse()
			if state.ToolsUsedThisRound > state.TotalToolsUsed {
				t.Fatalf("invariant violated: thisRound=%d > total=%d",
					state.ToolsUsedThisRound, state.TotalToolsUsed)
			}
		}
	}
}

func TestBudgetStateSingleToolBoundary(t *testing.T) {
	cfg := validBudget()
	cfg.MaxToolRounds = 1
	cfg.MaxToolsPerRound = 1
	cfg.MaxTotalTools = 1

	state := NewBudgetState(cfg)
	if !state.CanStartNewRound() {
		t.Fatal("first round must be allowed")
	}
	state.StartNewRound()
	if !state.CanContinueRound() {
		t.Fatal("first tool must be allowed")
	}
	state.RecordToolUse()

	if state.CanContinueRound() {
		t.Error("second tool must be refused")
	}
	if state.CanStartNewRound() {
		t.Error("second round must be refused")
	}
}

func TestBudgetStateRemaining(t *testing.T) {
	state := NewBudgetState(validBudget())
	state.StartNewRound()
	state.RecordToolUse()
	state.RecordToolUse()

	if got := state.RemainingThisRound(); got != 3 {
		t.Errorf("RemainingThisRound = %d, want 3", got)
	}
	if got := state.RemainingTools(); got != 8 {
		t.Errorf("RemainingTools = %d, want 8", got)
	}
	if got := state.RemainingRounds(); got != 2 {
		t.Errorf("RemainingRounds = %d, want 2", got)
	}
}

func TestBudgetStateConversationCap(t *testing.T) {
	cfg := validBudget()
	cfg.MaxConversationLength = 2

	state := NewBudgetState(cfg)
	state.RecordMessage()
	if state.ConversationFull() {
		t.Error("one message should not fill a two-message cap")
	}
	state.RecordMessage()
	if !state.ConversationFull() {
		t.Error("cap reached, conversation should be full")
	}
}
