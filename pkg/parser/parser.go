// Package parser extracts structured entities from free-text support
// queries. Extraction prefers the language model; when that fails it falls
// back to pattern matching so parsing never blocks an investigation.
package parser

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/lockwise/support-agent/pkg/domain"
	"github.com/lockwise/support-agent/pkg/observability"
)

var (
	uuidRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	codeRe = regexp.MustCompile(`\b\d{4,8}\b`)
	jsonRe = regexp.MustCompile(`(?s)\{.*\}`)
)

const extractionPrompt = `Extract the entities from this smart-lock support query as JSON with keys:
device_ids, workspace_ids, access_codes, question_type (one of access_code,
connectivity, action, account_issue, troubleshooting, api_help,
device_behavior), confidence (0-1), summary. Reply with JSON only.

Query: `

// Parser implements domain.QueryParser.
type Parser struct {
	llm     domain.LLMClient
	logger  *observability.StructuredLogger
	metrics *observability.Metrics
}

// New builds a parser. The llm may be nil, in which case every parse uses
// the pattern fallback.
func New(llm domain.LLMClient, logger *observability.StructuredLogger, metrics *observability.Metrics) *Parser {
	return &Parser{
		llm:     llm,
		logger:  logger.WithComponent("parser"),
		metrics: metrics,
	}
}

// Parse extracts entities from a query. It never fails: model errors degrade
// to a low-confidence pattern-matched result.
func (p *Parser) Parse(ctx context.Context, query string) *domain.ParsedQuery {
	if p.llm != nil {
		parsed, err := p.parseWithModel(ctx, query)
		if err == nil {
			return parsed
		}
		p.logger.Warn(ctx, "model extraction failed, using pattern fallback", map[string]any{
			"error": err.Error(),
		})
	}

	if p.metrics != nil {
		p.metrics.RecordQueryParseFallback(ctx)
	}
	return p.parseWithPatterns(query)
}

func (p *Parser) parseWithModel(ctx context.Context, query string) (*domain.ParsedQuery, error) {
	resp, err := p.llm.Complete(ctx, []domain.Message{
		{Role: "user", Content: extractionPrompt + query},
	}, nil, domain.ChatOptions{MaxTokens: 1024})
	if err != nil {
		return nil, err
	}

	payload := jsonRe.FindString(resp.Content)
	if payload == "" {
		payload = resp.Content
	}

	parsed := &domain.ParsedQuery{}
	if err := json.Unmarshal([]byte(payload), parsed); err != nil {
		return nil, err
	}

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	if parsed.QuestionType == "" {
		parsed.QuestionType = classifyQuestion(strings.ToLower(query))
	}
	if parsed.Summary == "" {
		parsed.Summary = truncate(query, 140)
	}
	return parsed, nil
}

// parseWithPatterns is the deterministic fallback. UUIDs following the word
// "workspace" become workspace ids; all others are treated as device ids.
func (p *Parser) parseWithPatterns(query string) *domain.ParsedQuery {
	lower := strings.ToLower(query)

	parsed := &domain.ParsedQuery{
		QuestionType: classifyQuestion(lower),
		Confidence:   0.3,
		Summary:      truncate(query, 140),
	}

	for _, id := range uuidRe.FindAllString(query, -1) {
		idx := strings.Index(query, id)
		before := strings.ToLower(query[maxInt(0, idx-30):idx])
		if strings.Contains(before, "workspace") {
			parsed.WorkspaceIDs = appendUnique(parsed.WorkspaceIDs, id)
		} else {
			parsed.DeviceIDs = appendUnique(parsed.DeviceIDs, id)
		}
	}

	// UUID segments would otherwise match the digit-code pattern.
	stripped := uuidRe.ReplaceAllString(query, " ")
	for _, code := range codeRe.FindAllString(stripped, -1) {
		parsed.AccessCodes = appendUnique(parsed.AccessCodes, code)
	}

	return parsed
}

// classifyQuestion mirrors the selector's category precedence: access-code
// first, then connectivity, then action.
func classifyQuestion(lower string) domain.QuestionType {
	switch {
	case strings.Contains(lower, "access code") || strings.Contains(lower, "pin") ||
		strings.Contains(lower, "keypad"):
		return domain.QuestionAccessCode
	case strings.Contains(lower, "offline") || strings.Contains(lower, "disconnect") ||
		strings.Contains(lower, "connection") || strings.Contains(lower, "unreachable"):
		return domain.QuestionConnectivity
	case strings.Contains(lower, "lock") || strings.Contains(lower, "unlock") ||
		strings.Contains(lower, "failed"):
		return domain.QuestionAction
	case strings.Contains(lower, "api") || strings.Contains(lower, "endpoint"):
		return domain.QuestionAPIHelp
	case strings.Contains(lower, "account"):
		return domain.QuestionAccountIssue
	default:
		return domain.QuestionTroubleshooting
	}
}

func appendUnique(items []string, item string) []string {
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	return append(items, item)
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit-3] + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
