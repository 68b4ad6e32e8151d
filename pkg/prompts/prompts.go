// Package prompts holds the prompt templates for the investigation
// conversation. Templates are plain string builders; nothing here talks to
// the model.
package prompts

import (
	"fmt"
	"strings"

	"github.com/lockwise/support-agent/pkg/domain"
)

// System is the system prompt for the investigation conversation.
const System = `You are a smart-lock support investigation assistant. You investigate customer
issues by calling diagnostic tools against the device database and log
backends, then write a root-cause analysis.

Rules:
- Only state facts returned by tools. Never invent device ids, access codes,
  or timestamps.
- Prefer calling tools over guessing. If a tool failed, say so.
- When you have enough evidence, answer without requesting more tools.`

// Initial builds the first user message: the customer query plus the parsed
// entities and the recommended starting tools.
func Initial(query string, parsed *domain.ParsedQuery, initialTools []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Customer query:\n%s\n\n", query)

	b.WriteString("Extracted entities:\n")
	fmt.Fprintf(&b, "- question type: %s (confidence %.2f)\n", parsed.QuestionType, parsed.Confidence)
	if len(parsed.DeviceIDs) > 0 {
		fmt.Fprintf(&b, "- device ids: %s\n", strings.Join(parsed.DeviceIDs, ", "))
	}
	if len(parsed.WorkspaceIDs) > 0 {
		fmt.Fprintf(&b, "- workspace ids: %s\n", strings.Join(parsed.WorkspaceIDs, ", "))
	}
	if len(parsed.AccessCodes) > 0 {
		fmt.Fprintf(&b, "- access codes mentioned: %s\n", strings.Join(parsed.AccessCodes, ", "))
	}
	if parsed.Summary != "" {
		fmt.Fprintf(&b, "- summary: %s\n", parsed.Summary)
	}

	fmt.Fprintf(&b, "\nStart by calling these tools: %s\n", strings.Join(initialTools, ", "))
	b.WriteString("Investigate the issue and report what you find.")
	return b.String()
}

// Followup builds the prompt asking for another round with the recommended
// next tools.
func Followup(reason string, recommended []string, findings []string) string {
	var b strings.Builder

	b.WriteString("The investigation is not complete")
	if reason != "" {
		fmt.Fprintf(&b, " (%s)", reason)
	}
	b.WriteString(".\n\n")

	if len(findings) > 0 {
		b.WriteString("Findings so far:\n")
		for _, finding := range findings {
			fmt.Fprintf(&b, "- %s\n", finding)
		}
		b.WriteString("\n")
	}

	if len(recommended) > 0 {
		fmt.Fprintf(&b, "Recommended next tools: %s\n", strings.Join(recommended, ", "))
	}
	b.WriteString("Call the tools you need, or answer now if the evidence is sufficient.")
	return b.String()
}

// FinalAnalysis forces a text-only answer; no further tools will run.
func FinalAnalysis(reason string, findings []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The investigation is stopping (%s). No further tool calls will be executed.\n\n", reason)
	if len(findings) > 0 {
		b.WriteString("Findings:\n")
		for _, finding := range findings {
			fmt.Fprintf(&b, "- %s\n", finding)
		}
		b.WriteString("\n")
	}
	b.WriteString("Write your root-cause analysis now, based only on the findings above.")
	return b.String()
}

// FormatNote asks the model to reformat a raw analysis as an internal
// support note.
func FormatNote(query, rawAnalysis string) string {
	var b strings.Builder

	b.WriteString("Reformat the following analysis as an internal support note with sections:\n")
	b.WriteString("Issue, Evidence, Root Cause, Recommended Actions.\n")
	b.WriteString("Keep every fact; do not add new ones.\n\n")
	fmt.Fprintf(&b, "Customer query: %s\n\nAnalysis:\n%s", query, rawAnalysis)
	return b.String()
}
