package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/haasonsaas/pocketd/internal/agent"
)

const (
	// MaxFetchChars caps the text returned by web_fetch.
	MaxFetchChars = 500000

	// maxFetchBody bounds how much of the response body is read.
	maxFetchBody = 10 << 20

	fetchUserAgent = "Mozilla/5.0 (compatible; pocketd/1.0)"
)

// FetchTool implements web_fetch: pull a page and return readable text.
type FetchTool struct {
	client *http.Client
}

// NewFetchTool creates a fetch tool from the given config.
func NewFetchTool(config Config) *FetchTool {
	return &FetchTool{client: config.client()}
}

func (t *FetchTool) Name() string { return "web_fetch" }

func (t *FetchTool) Description() string {
	return "Fetch a URL and return its content as readable text. HTML is reduced to text; boilerplate (scripts, navigation, footers) is stripped."
}

func (t *FetchTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The URL to fetch (http or https).",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "Optional element selector to narrow extraction: a tag name, #id, or .class.",
			},
		},
		"required": []string{"url"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *FetchTool) Available() bool { return true }

func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL      string `json:"url"`
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return webError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if input.URL == "" {
		return webError("url is required"), nil
	}
	parsed, err := url.Parse(input.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return webError("url must be http or https"), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return webError(fmt.Sprintf("create request: %v", err)), nil
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return webError(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return webError(fmt.Sprintf("fetch returned status %d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return webError(fmt.Sprintf("read body: %v", err)), nil
	}

	contentType := resp.Header.Get("Content-Type")
	var text string
	switch {
	case strings.Contains(contentType, "text/html"):
		text, err = ExtractText(string(body), input.Selector)
		if err != nil {
			return webError(fmt.Sprintf("extract text: %v", err)), nil
		}
	case strings.Contains(contentType, "application/json"), strings.Contains(contentType, "text/"):
		text = string(body)
	default:
		return webError(fmt.Sprintf("unsupported content type: %s", contentType)), nil
	}

	if len(text) > MaxFetchChars {
		text = text[:MaxFetchChars] + "\n... [content truncated]"
	}
	return &agent.ToolResult{Content: text}, nil
}
