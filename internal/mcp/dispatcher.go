package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/searchbridge/searchbridge/internal/reqctx"
	"github.com/searchbridge/searchbridge/internal/search"
	"github.com/searchbridge/searchbridge/internal/tavily"
	"github.com/searchbridge/searchbridge/internal/usage"
)

// TavilyClient is the Tavily surface the dispatcher drives directly for
// tavily_* tools, bypassing the routing mode resolver.
type TavilyClient interface {
	WebSearch(ctx context.Context, q search.Query) ([]search.Result, error)
	Extract(ctx context.Context, req tavily.ExtractRequest) ([]byte, error)
}

// ServerInfo identifies the bridge in initialize results.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Dispatcher executes JSON-RPC methods. Transports own framing, sessions,
// and auth; the dispatcher only sees authenticated requests.
type Dispatcher struct {
	router *search.Router
	tavily TavilyClient // nil when Tavily has no keys
	usage  *usage.Logger
	info   ServerInfo
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(router *search.Router, tavilyClient TavilyClient, usageLogger *usage.Logger, info ServerInfo) *Dispatcher {
	return &Dispatcher{
		router: router,
		tavily: tavilyClient,
		usage:  usageLogger,
		info:   info,
	}
}

// Dispatch executes one request and returns its response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return NewResult(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      d.info,
		})

	case "notifications/initialized":
		// Notification; acknowledged with an empty result for clients that
		// sent it with an id.
		return NewResult(req.ID, map[string]any{})

	case "tools/list":
		return NewResult(req.ID, map[string]any{"tools": ToolList()})

	case "tools/call":
		return d.callTool(ctx, req)

	default:
		return NewError(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

// toolResult wraps text in the MCP content envelope.
func toolResult(text string) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	}
}

func (d *Dispatcher) callTool(ctx context.Context, req Request) Response {
	name := gjson.GetBytes(req.Params, "name").Str
	args := gjson.GetBytes(req.Params, "arguments")
	if name == "" {
		return NewError(req.ID, CodeBadRequest, "tools/call requires params.name")
	}

	ctx, keyRec := reqctx.WithUpstreamKey(ctx)

	start := time.Now()
	text, resultCount, err := d.invoke(ctx, name, args)

	d.logUsage(ctx, name, args, keyRec.ID(), time.Since(start), resultCount, err)

	if err != nil {
		logToolFailure(ctx, name, err)
		return toolError(req.ID, name, err)
	}
	return NewResult(req.ID, toolResult(text))
}

// invoke runs one tool and returns the rendered text content.
func (d *Dispatcher) invoke(ctx context.Context, name string, args gjson.Result) (string, int, error) {
	switch name {
	case ToolTavilySearch:
		if d.tavily == nil {
			return "", 0, search.ErrNotConfigured
		}
		q, err := tavilyQuery(args)
		if err != nil {
			return "", 0, err
		}
		results, err := d.tavily.WebSearch(ctx, q)
		if err != nil {
			return "", 0, err
		}
		return search.Render(results), len(results), nil

	case ToolTavilyExtract:
		if d.tavily == nil {
			return "", 0, search.ErrNotConfigured
		}
		extractReq, err := extractRequest(args)
		if err != nil {
			return "", 0, err
		}
		body, err := d.tavily.Extract(ctx, extractReq)
		if err != nil {
			return "", 0, err
		}
		return prettyJSON(body), len(extractReq.URLs), nil

	case ToolBraveWebSearch, ToolBraveLocalSearch:
		q, err := braveQuery(args)
		if err != nil {
			return "", 0, err
		}
		results, err := d.router.Route(ctx, q, name == ToolBraveLocalSearch)
		if err != nil {
			return "", 0, err
		}
		return search.Render(results), len(results), nil

	default:
		return "", 0, &RPCError{Code: CodeMethodNotFound, Message: "Unknown tool: " + name}
	}
}

func (d *Dispatcher) logUsage(ctx context.Context, tool string, args gjson.Result, upstreamKeyID string, duration time.Duration, resultCount int, err error) {
	if d.usage == nil {
		return
	}

	provider := "brave"
	if strings.HasPrefix(tool, "tavily_") {
		provider = "tavily"
	}

	d.usage.Log(ctx, usage.Entry{
		Tool:          tool,
		Provider:      provider,
		Query:         args.Get("query").Str,
		ArgsJSON:      args.Raw,
		UpstreamKeyID: upstreamKeyID,
		Duration:      duration,
		ResultCount:   resultCount,
		Err:           err,
	})
}

// toolError maps tool failures to JSON-RPC errors without leaking key
// material; the taxonomy messages are already sanitized.
func toolError(id any, name string, err error) Response {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return Response{JSONRPC: Version, ID: id, Error: rpcErr}
	}

	switch {
	case errors.Is(err, errBadArguments):
		return NewError(id, CodeBadRequest, err.Error())
	case errors.Is(err, search.ErrNotConfigured):
		return NewError(id, CodeBadRequest, "Tool "+name+" is not configured on this server")
	case errors.Is(err, search.ErrUpstreamUnavailable):
		return NewError(id, CodeUnavailable, "Tool "+name+" failed: "+err.Error())
	default:
		if retryAfter, ok := search.IsRateLimited(err); ok {
			return Response{JSONRPC: Version, ID: id, Error: &RPCError{
				Code:    CodeRateLimited,
				Message: "Tool " + name + " failed: " + err.Error(),
				Data:    map[string]any{"retryAfterMs": retryAfter.Milliseconds()},
			}}
		}
		return NewError(id, CodeInternal, "Tool "+name+" failed: "+err.Error())
	}
}

var errBadArguments = errors.New("invalid tool arguments")

// tavilyQuery maps tavily_search arguments onto the neutral query shape.
func tavilyQuery(args gjson.Result) (search.Query, error) {
	queryText := args.Get("query").Str
	if queryText == "" {
		return search.Query{}, fmt.Errorf("%w: query is required", errBadArguments)
	}

	q := search.Query{
		Query: queryText,
		Count: int(args.Get("max_results").Int()),
		Extra: map[string]any{},
	}
	args.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "query", "max_results":
		default:
			q.Extra[key.Str] = value.Value()
		}
		return true
	})
	return q, nil
}

// braveQuery maps brave_* tool arguments onto the neutral query shape.
func braveQuery(args gjson.Result) (search.Query, error) {
	queryText := args.Get("query").Str
	if queryText == "" {
		return search.Query{}, fmt.Errorf("%w: query is required", errBadArguments)
	}

	q := search.Query{
		Query:  queryText,
		Count:  int(args.Get("count").Int()),
		Offset: int(args.Get("offset").Int()),
		Extra:  map[string]any{},
	}
	args.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "query", "count", "offset":
		default:
			q.Extra[key.Str] = value.Value()
		}
		return true
	})
	return q, nil
}

func extractRequest(args gjson.Result) (tavily.ExtractRequest, error) {
	urls := args.Get("urls").Array()
	if len(urls) == 0 {
		return tavily.ExtractRequest{}, fmt.Errorf("%w: urls is required", errBadArguments)
	}

	req := tavily.ExtractRequest{
		ExtractDepth: args.Get("extract_depth").Str,
		IncludeImage: args.Get("include_images").Bool(),
	}
	for _, u := range urls {
		if u.Str != "" {
			req.URLs = append(req.URLs, u.Str)
		}
	}
	if len(req.URLs) == 0 {
		return tavily.ExtractRequest{}, fmt.Errorf("%w: urls must be strings", errBadArguments)
	}
	return req, nil
}

func prettyJSON(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(body)
	}
	return string(out)
}

// logToolFailure is a debug hook for transports that want per-call logging
// beyond the usage row.
func logToolFailure(ctx context.Context, tool string, err error) {
	zerolog.Ctx(ctx).Warn().Str("tool", tool).Err(err).Msg("tool call failed")
}
