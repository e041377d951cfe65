package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

// DefaultFirecrawlURL is the hosted Firecrawl API.
const DefaultFirecrawlURL = "https://api.firecrawl.dev"

// requestSlack is added to the search timeout so the service can answer
// with a timeout error of its own before the client gives up.
const requestSlack = 5 * time.Second

// Firecrawl searches the web and scrapes each hit to Markdown.
type Firecrawl struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewFirecrawl returns a Firecrawl search service. baseURL may point to a
// self-hosted instance; an empty value uses the hosted API.
func NewFirecrawl(apiKey, baseURL string) *Firecrawl {
	if baseURL == "" {
		baseURL = DefaultFirecrawlURL
	}
	return &Firecrawl{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

type firecrawlRequest struct {
	Query         string                 `json:"query"`
	Limit         int                    `json:"limit"`
	Timeout       int64                  `json:"timeout"`
	ScrapeOptions firecrawlScrapeOptions `json:"scrapeOptions"`
}

type firecrawlScrapeOptions struct {
	Formats []string `json:"formats"`
}

type firecrawlResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error"`
	Data    []research.Document `json:"data"`
}

// Search runs query and returns the scraped results.
func (f *Firecrawl) Search(ctx context.Context, query string, timeout time.Duration, limit int) ([]research.Document, error) {
	reqBody := firecrawlRequest{
		Query:         query,
		Limit:         limit,
		Timeout:       timeout.Milliseconds(),
		ScrapeOptions: firecrawlScrapeOptions{Formats: []string{"markdown"}},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout+requestSlack)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/v1/search", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firecrawl returned status %d: %s", resp.StatusCode, string(body))
	}

	var out firecrawlResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("firecrawl search unsuccessful: %s", out.Error)
	}

	slog.Debug("Firecrawl search complete", "query", query, "results", len(out.Data))
	return out.Data, nil
}
