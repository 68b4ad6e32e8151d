package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lockwise/support-agent/pkg/config"
)

// Quickwit implements domain.LogSearcher against a Quickwit search cluster.
type Quickwit struct {
	baseURL    string
	index      string
	httpClient *http.Client
}

type quickwitRequest struct {
	Query          string `json:"query"`
	MaxHits        int    `json:"max_hits"`
	StartTimestamp int64  `json:"start_timestamp,omitempty"`
}

type quickwitResponse struct {
	Hits        []map[string]any `json:"hits"`
	NumHits     int              `json:"num_hits"`
	ElapsedTime int64            `json:"elapsed_time_micros"`
}

// NewQuickwit builds a log search client.
func NewQuickwit(cfg config.QuickwitConfig) *Quickwit {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Quickwit{
		baseURL:    cfg.BaseURL,
		index:      cfg.Index,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search queries the index for entries matching the query since the given
// time.
func (q *Quickwit) Search(ctx context.Context, query string, since time.Time, limit int) ([]map[string]any, error) {
	reqBody, err := json.Marshal(quickwitRequest{
		Query:          query,
		MaxHits:        limit,
		StartTimestamp: since.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/%s/search", q.baseURL, q.index)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("log search failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("log search returned status %d", resp.StatusCode)
	}

	var result quickwitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return result.Hits, nil
}
