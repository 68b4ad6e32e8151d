package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lockwise/support-agent/pkg/domain"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient implements domain.LLMClient against the Anthropic
// Messages API.
type AnthropicClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	options    AnthropicOptions
}

// AnthropicOptions configures the Anthropic client
type AnthropicOptions struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// anthropicRequest represents a request to the Messages API
type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

// anthropicContent is one content block; the Type field selects which of
// the remaining fields are meaningful.
type anthropicContent struct {
	Type string `json:"type"`

	// type "text"
	Text string `json:"text,omitempty"`

	// type "tool_use"
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// type "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	InputSchema domain.ToolSchema `json:"input_schema"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(baseURL, apiKey, model string, options *AnthropicOptions) *AnthropicClient {
	if options == nil {
		options = &AnthropicOptions{
			Temperature: 0.2,
			MaxTokens:   4096,
			Timeout:     2 * time.Minute,
		}
	}
	if options.MaxTokens == 0 {
		options.MaxTokens = 4096
	}
	if options.Timeout == 0 {
		options.Timeout = 2 * time.Minute
	}

	return &AnthropicClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: options.Timeout,
		},
		options: *options,
	}
}

// Complete performs one chat turn. The response is normalized so that tool
// calls and prose are never conflated: when the model requests tools, any
// accompanying text is dropped from Content.
func (c *AnthropicClient) Complete(ctx context.Context, messages []domain.Message, tools []domain.ToolDefinition, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	req := anthropicRequest{
		Model:       c.model,
		System:      opts.System,
		Messages:    convertMessages(messages),
		Tools:       convertTools(tools),
		MaxTokens:   c.options.MaxTokens,
		Temperature: c.options.Temperature,
		StopSeqs:    opts.Stop,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = opts.Temperature
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		"POST",
		fmt.Sprintf("%s/v1/messages", c.baseURL),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if apiResp.Error != nil {
			return nil, fmt.Errorf("api error %d (%s): %s", resp.StatusCode, apiResp.Error.Type, apiResp.Error.Message)
		}
		return nil, fmt.Errorf("api error: status %d", resp.StatusCode)
	}

	return normalizeResponse(&apiResp), nil
}

// IsHealthy reports whether the API endpoint answers at all.
func (c *AnthropicClient) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/v1/models", c.baseURL), nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// convertMessages maps domain messages to Messages API content blocks.
func convertMessages(messages []domain.Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		var blocks []anthropicContent

		for _, result := range msg.ToolResults {
			blocks = append(blocks, anthropicContent{
				Type:      "tool_result",
				ToolUseID: result.CallID,
				Content:   result.Content,
				IsError:   result.IsError,
			})
		}
		if msg.Content != "" {
			blocks = append(blocks, anthropicContent{Type: "text", Text: msg.Content})
		}
		for _, call := range msg.ToolCalls {
			blocks = append(blocks, anthropicContent{
				Type:  "tool_use",
				ID:    call.ID,
				Name:  call.Name,
				Input: call.Args,
			})
		}
		if len(blocks) == 0 {
			continue
		}

		role := msg.Role
		if role != "assistant" {
			role = "user"
		}
		out = append(out, anthropicMessage{Role: role, Content: blocks})
	}
	return out
}

func convertTools(tools []domain.ToolDefinition) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return out
}

// normalizeResponse flattens content blocks into either prose or tool calls.
func normalizeResponse(apiResp *anthropicResponse) *domain.ChatResponse {
	resp := &domain.ChatResponse{
		StopReason: apiResp.StopReason,
		Usage: domain.TokenUsage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
	}

	var text string
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, domain.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: block.Input,
			})
		}
	}
	if len(resp.ToolCalls) == 0 {
		resp.Content = text
	}
	return resp
}
