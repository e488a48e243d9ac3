package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// WriteSSE writes responses as line-framed server-sent events, one
// event: message frame per response.
func WriteSSE(w io.Writer, responses ...Response) error {
	for _, resp := range responses {
		data, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
			return err
		}
	}
	return nil
}

// ParseSSE extracts the data payloads of message events from an SSE stream.
// Multi-line data fields are joined per the SSE spec.
func ParseSSE(stream string) []json.RawMessage {
	var out []json.RawMessage
	var dataLines []string

	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = nil
		if gjson.Valid(payload) {
			out = append(out, json.RawMessage(payload))
		}
	}

	for _, line := range strings.Split(stream, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	flush()
	return out
}

// PickByID selects the message with the given JSON-RPC id. When id is nil,
// or no message matches, it falls back to the last message carrying any id.
func PickByID(messages []json.RawMessage, id any) (json.RawMessage, bool) {
	var fallback json.RawMessage
	var found bool

	wantID := fmt.Sprintf("%v", id)
	for _, msg := range messages {
		got := gjson.GetBytes(msg, "id")
		if !got.Exists() {
			continue
		}
		fallback = msg
		found = true
		if id != nil && got.String() == wantID {
			return msg, true
		}
	}
	return fallback, found
}
