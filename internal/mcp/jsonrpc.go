// Package mcp implements the Model Context Protocol surface of the bridge:
// JSON-RPC framing, sessions, the tool dispatcher, and the HTTP and stdio
// transports.
package mcp

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// Version is the JSON-RPC protocol version string.
const Version = "2.0"

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes used by the bridge.
const (
	// CodeAuth covers authentication and session failures (HTTP 401).
	CodeAuth = -32600

	// CodeMethodNotFound covers unknown methods and tools (HTTP 400).
	CodeMethodNotFound = -32601

	// CodeInternal covers unexpected server failures (HTTP 500).
	CodeInternal = -32603

	// CodeBadRequest covers malformed requests and invalid sessions (HTTP 400).
	CodeBadRequest = -32000

	// CodeUnavailable covers exhausted upstream capacity: every key and
	// provider option failed (HTTP 503).
	CodeUnavailable = -32001

	// CodeRateLimited covers an upstream 429 that survived rotation and
	// fallback (HTTP 429, retry hint in error.data.retryAfterMs).
	CodeRateLimited = -32002
)

// Request is one JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one JSON-RPC response.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the error member of a failed response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// NewResult builds a success response.
func NewResult(id, result any) Response {
	return Response{JSONRPC: Version, ID: id, Result: result}
}

// NewError builds an error response.
func NewError(id any, code int, message string) Response {
	return Response{JSONRPC: Version, ID: id, Error: &RPCError{Code: code, Message: message}}
}

// ErrEmptyBody is returned by DecodeBody for an empty or whitespace body.
var ErrEmptyBody = errors.New("mcp: empty request body")

// DecodeBody parses a request body holding either a single JSON-RPC request
// or a batch array. batch reports which form arrived so the reply can use
// the same framing.
func DecodeBody(body []byte) (requests []Request, batch bool, err error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, false, ErrEmptyBody
	}

	if strings.HasPrefix(trimmed, "[") {
		var reqs []Request
		if err := json.Unmarshal([]byte(trimmed), &reqs); err != nil {
			return nil, true, err
		}
		return reqs, true, nil
	}

	var req Request
	if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
		return nil, false, err
	}
	return []Request{req}, false, nil
}

// Session-error phrasings clients are known to detect before re-initializing.
var sessionInvalidMarkers = []string{
	"No valid session ID provided",
	"Invalid or missing session ID",
	"Session not found",
}

// IsSessionInvalid reports whether an error message signals a dead or
// missing session, the condition that tells a client to re-initialize.
func IsSessionInvalid(message string) bool {
	for _, marker := range sessionInvalidMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// HasTavilyToolsCall reports whether the raw body is (or contains, for a
// batch) a tools/call for a tavily_* tool. It gates the upstream credit
// preflight so brave-only traffic never pays for it.
func HasTavilyToolsCall(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}

	parsed := gjson.ParseBytes(body)
	if parsed.IsArray() {
		for _, item := range parsed.Array() {
			if isTavilyToolsCall(item) {
				return true
			}
		}
		return false
	}
	return isTavilyToolsCall(parsed)
}

func isTavilyToolsCall(v gjson.Result) bool {
	return v.Get("method").Str == "tools/call" &&
		strings.HasPrefix(v.Get("params.name").Str, "tavily_")
}
