package search

import (
	"context"
	"encoding/json"
)

// Result is the provider-neutral search result shape ("v0100" Brave form).
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Query is a normalized web/local search request.
type Query struct {
	// Extra holds provider pass-through parameters beyond the core trio.
	Extra map[string]any

	Query  string
	Count  int
	Offset int
}

// Client is the capability set every upstream search provider exposes.
// Implementations must return errors from this package's taxonomy.
type Client interface {
	// WebSearch runs a web search and returns normalized results.
	WebSearch(ctx context.Context, q Query) ([]Result, error)

	// LocalSearch runs a local (places) search. Providers without a local
	// endpoint delegate to web search.
	LocalSearch(ctx context.Context, q Query) ([]Result, error)
}

// Render pretty-prints results as 2-space indented JSON for embedding in an
// MCP text content block.
func Render(results []Result) string {
	if results == nil {
		results = []Result{}
	}
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(out)
}
