package mcp

import "encoding/json"

// Tool names exposed through tools/list.
const (
	ToolTavilySearch    = "tavily_search"
	ToolTavilyExtract   = "tavily_extract"
	ToolBraveWebSearch  = "brave_web_search"
	ToolBraveLocalSearch = "brave_local_search"
)

// Tool is one entry of the tools/list result.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolList returns the bridge's tool surface.
func ToolList() []Tool {
	return []Tool{
		{
			Name:        ToolTavilySearch,
			Description: "Web search via the Tavily API. Returns titles, URLs, and content snippets.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The search query"},
					"max_results": {"type": "number", "description": "Maximum results to return (default 10)"},
					"search_depth": {"type": "string", "enum": ["basic", "advanced"], "description": "Search depth"},
					"topic": {"type": "string", "enum": ["general", "news"], "description": "Search topic"},
					"include_domains": {"type": "array", "items": {"type": "string"}},
					"exclude_domains": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        ToolTavilyExtract,
			Description: "Extract page content from a list of URLs via the Tavily API.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"urls": {"type": "array", "items": {"type": "string"}, "description": "URLs to extract"},
					"extract_depth": {"type": "string", "enum": ["basic", "advanced"]},
					"include_images": {"type": "boolean"}
				},
				"required": ["urls"]
			}`),
		},
		{
			Name:        ToolBraveWebSearch,
			Description: "Web search via the Brave Search API. Supports pagination and freshness filters.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The search query (max 400 chars)"},
					"count": {"type": "number", "description": "Results per page (1-20, default 10)"},
					"offset": {"type": "number", "description": "Page offset (0-9, default 0)"}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        ToolBraveLocalSearch,
			Description: "Local business and place search via the Brave Search API.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Local search query, e.g. 'pizza near Central Park'"},
					"count": {"type": "number", "description": "Results to return (1-20, default 10)"}
				},
				"required": ["query"]
			}`),
		},
	}
}
