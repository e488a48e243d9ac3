package mcp_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/searchbridge/searchbridge/internal/mcp"
)

func TestWriteAndParseSSE(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	require.NoError(t, mcp.WriteSSE(&buf,
		mcp.NewResult(float64(2), map[string]any{"ok": true}),
		mcp.NewResult(float64(3), map[string]any{"ok": true}),
	))

	stream := buf.String()
	assert.Contains(t, stream, "event: message\n")

	messages := mcp.ParseSSE(stream)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(2), gjson.GetBytes(messages[0], "id").Int())
	assert.Equal(t, int64(3), gjson.GetBytes(messages[1], "id").Int())
}

func TestParseSSE(t *testing.T) {
	t.Parallel()

	t.Run("two frames pick by id", func(t *testing.T) {
		t.Parallel()

		stream := "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":2,\"result\":{\"ok\":true}}\n\n" +
			"event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":3,\"result\":{\"ok\":true}}\n\n"

		messages := mcp.ParseSSE(stream)
		require.Len(t, messages, 2)

		picked, ok := mcp.PickByID(messages, 3)
		require.True(t, ok)
		assert.Equal(t, int64(3), gjson.GetBytes(picked, "id").Int())
	})

	t.Run("absent id falls back to last with id", func(t *testing.T) {
		t.Parallel()

		stream := "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":2,\"result\":{}}\n\n" +
			"event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":3,\"result\":{}}\n\n"

		picked, ok := mcp.PickByID(mcp.ParseSSE(stream), nil)
		require.True(t, ok)
		assert.Equal(t, int64(3), gjson.GetBytes(picked, "id").Int())
	})

	t.Run("unmatched id falls back to last with id", func(t *testing.T) {
		t.Parallel()

		stream := "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":2,\"result\":{}}\n\n"

		picked, ok := mcp.PickByID(mcp.ParseSSE(stream), 99)
		require.True(t, ok)
		assert.Equal(t, int64(2), gjson.GetBytes(picked, "id").Int())
	})

	t.Run("comments and crlf tolerated", func(t *testing.T) {
		t.Parallel()

		stream := ": ping\r\n\r\nevent: message\r\ndata: {\"id\":1}\r\n\r\n"
		messages := mcp.ParseSSE(stream)
		require.Len(t, messages, 1)
	})

	t.Run("no messages", func(t *testing.T) {
		t.Parallel()

		_, ok := mcp.PickByID(mcp.ParseSSE(": ping\n\n"), 1)
		assert.False(t, ok)
	})
}
