package websearch

import (
	"context"
	"strings"
	"time"

	"github.com/SLZMWLMJY/Legal-ai/internal/config"
)

// Result is a single search result entry.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Response is a normalized search response.
type Response struct {
	Query    string   `json:"query"`
	Provider string   `json:"provider"`
	Results  []Result `json:"results"`
}

// Provider performs web searches.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) (Response, error)
}

// NewProvider builds the configured search provider.
func NewProvider(cfg config.WebSearchConfig) Provider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "searxng":
		return NewSearXNGProvider(cfg.BaseURL, cfg.UserAgent, cfg.APIKey, timeout)
	default:
		return NewDuckDuckGoProvider(cfg.BaseURL, cfg.UserAgent, timeout)
	}
}
