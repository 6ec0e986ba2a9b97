// Package web provides the web_search and web_fetch tools. Search uses
// the Brave Search API when a key is configured; fetch pulls a page and
// reduces it to readable text.
package web

import (
	"net/http"
	"time"

	"github.com/haasonsaas/pocketd/internal/agent"
)

// Config holds shared settings for the web tools.
type Config struct {
	// BraveAPIKey enables web_search. Empty key leaves the tool
	// registered but unavailable.
	BraveAPIKey string

	// SearchBaseURL overrides the Brave API endpoint, for tests.
	SearchBaseURL string

	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client
}

func (c Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func webError(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: "Error: " + message, IsError: true}
}
