package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/haasonsaas/pocketd/internal/agent"
)

const (
	braveBaseURL       = "https://api.search.brave.com/res/v1"
	defaultResultCount = 5
	maxResultCount     = 10
)

// SearchResult is a single search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResponse is the formatted web_search output.
type SearchResponse struct {
	Query       string         `json:"query"`
	Results     []SearchResult `json:"results"`
	ResultCount int            `json:"result_count"`
}

// SearchTool implements web_search against the Brave Search API.
type SearchTool struct {
	config Config
	client *http.Client
}

// NewSearchTool creates a search tool from the given config.
func NewSearchTool(config Config) *SearchTool {
	if config.SearchBaseURL == "" {
		config.SearchBaseURL = braveBaseURL
	}
	return &SearchTool{config: config, client: config.client()}
}

func (t *SearchTool) Name() string { return "web_search" }

func (t *SearchTool) Description() string {
	return "Search the web. Returns titles, URLs, and snippets for the top results."
}

func (t *SearchTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query.",
			},
			"count": map[string]interface{}{
				"type":        "integer",
				"description": "Number of results (default 5, max 10).",
				"minimum":     1,
				"maximum":     maxResultCount,
			},
		},
		"required": []string{"query"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Available reports whether a Brave API key is configured.
func (t *SearchTool) Available() bool { return t.config.BraveAPIKey != "" }

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return webError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.Query == "" {
		return webError("query is required"), nil
	}
	count := input.Count
	if count <= 0 {
		count = defaultResultCount
	}
	if count > maxResultCount {
		count = maxResultCount
	}

	response, err := t.search(ctx, input.Query, count)
	if err != nil {
		return webError(fmt.Sprintf("search failed: %v", err)), nil
	}

	output, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return webError(fmt.Sprintf("encode results: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(output)}, nil
}

func (t *SearchTool) search(ctx context.Context, query string, count int) (*SearchResponse, error) {
	endpoint, err := url.Parse(t.config.SearchBaseURL + "/web/search")
	if err != nil {
		return nil, fmt.Errorf("invalid search URL: %w", err)
	}
	values := url.Values{}
	values.Set("q", query)
	values.Set("count", fmt.Sprintf("%d", count))
	endpoint.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.config.BraveAPIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var braveResp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &braveResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]SearchResult, 0, count)
	for _, r := range braveResp.Web.Results {
		if len(results) >= count {
			break
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return &SearchResponse{Query: query, Results: results, ResultCount: len(results)}, nil
}
