package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/SLZMWLMJY/Legal-ai/internal/websearch"
)

// WebSearchTool searches the web using a configured provider. Failures are
// reported as human-readable strings so the agent can narrate them instead
// of aborting the turn.
type WebSearchTool struct {
	provider     websearch.Provider
	defaultLimit int
}

// NewWebSearchTool creates a web search tool around a provider.
func NewWebSearchTool(provider websearch.Provider, defaultLimit int) *WebSearchTool {
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	return &WebSearchTool{
		provider:     provider,
		defaultLimit: defaultLimit,
	}
}

func (t *WebSearchTool) Name() string {
	return "web_search"
}

func (t *WebSearchTool) Description() string {
	return "使用此工具搜索最新的互联网信息。当你需要获取实时信息或不确定某个事实时使用"
}

func (t *WebSearchTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "query",
			Type:        "string",
			Description: "搜索关键词",
			Required:    true,
		},
	}
}

func (t *WebSearchTool) Execute(args map[string]any) (string, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("missing required parameter: query")
	}

	resp, err := t.provider.Search(context.Background(), query, t.defaultLimit)
	if err != nil {
		return fmt.Sprintf("搜索失败：%v", err), nil
	}

	if len(resp.Results) == 0 {
		return "搜索未返回任何结果", nil
	}

	snippets := make([]string, 0, len(resp.Results))
	for _, res := range resp.Results {
		snippets = append(snippets, fmt.Sprintf("来源：%s\n内容：%s", res.Title, res.Snippet))
	}

	return strings.Join(snippets, "\n\n"), nil
}
