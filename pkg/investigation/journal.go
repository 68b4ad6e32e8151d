package investigation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JournalEntry is one recorded step of an investigation.
type JournalEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Journal is an in-memory record of everything an investigation did, kept
// for the debug export. It is scoped to one investigation and one goroutine.
type Journal struct {
	investigationID string
	start           time.Time
	entries         []JournalEntry
}

// NewJournal starts a journal for one investigation.
func NewJournal(investigationID string) *Journal {
	return &Journal{
		investigationID: investigationID,
		start:           time.Now(),
	}
}

// Record appends one entry.
func (j *Journal) Record(stage, message string, data map[string]any) {
	j.entries = append(j.entries, JournalEntry{
		Timestamp: time.Now(),
		Stage:     stage,
		Message:   message,
		Data:      data,
	})
}

// Entries returns all recorded entries in order.
func (j *Journal) Entries() []JournalEntry {
	return j.entries
}

// Summary renders a compact per-stage overview for the debug payload.
func (j *Journal) Summary() string {
	byStage := make(map[string]int)
	order := []string{}
	for _, entry := range j.entries {
		if byStage[entry.Stage] == 0 {
			order = append(order, entry.Stage)
		}
		byStage[entry.Stage]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Investigation %s: %d steps in %s\n",
		j.investigationID, len(j.entries), time.Since(j.start).Round(time.Millisecond))
	for _, stage := range order {
		fmt.Fprintf(&b, "  %s: %d\n", stage, byStage[stage])
	}
	return b.String()
}

// Export renders the full journal as JSON lines.
func (j *Journal) Export() string {
	var b strings.Builder
	for _, entry := range j.entries {
		line, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}
