package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/searchbridge/searchbridge/internal/auth"
	"github.com/searchbridge/searchbridge/internal/keypool"
	"github.com/searchbridge/searchbridge/internal/reqctx"
)

// StdioTransport serves the same JSON-RPC surface over line-delimited
// stdio, the transport local MCP clients spawn as a subprocess. The client
// token arrives once on startup instead of per request.
type StdioTransport struct {
	auth       *auth.Authenticator
	dispatcher *Dispatcher
	preflight  Preflighter
	in         io.Reader
	out        io.Writer
}

// NewStdioTransport creates a stdio transport reading requests from in and
// writing responses to out.
func NewStdioTransport(authenticator *auth.Authenticator, dispatcher *Dispatcher, preflight Preflighter, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{
		auth:       authenticator,
		dispatcher: dispatcher,
		preflight:  preflight,
		in:         in,
		out:        out,
	}
}

// Run authenticates the startup token, then serves requests line by line
// until EOF or context cancellation.
func (t *StdioTransport) Run(ctx context.Context, rawToken string) error {
	token, err := t.auth.AuthenticateToken(ctx, rawToken)
	if err != nil {
		return fmt.Errorf("stdio: token rejected: %w", err)
	}

	ctx = reqctx.With(ctx, reqctx.Info{TokenID: token.ID, TokenPrefix: token.Prefix})
	logger := zerolog.Ctx(ctx).With().Str("transport", "stdio").Logger()
	ctx = logger.WithContext(ctx)

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxBodyBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := t.serveLine(ctx, []byte(line)); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio: read: %w", err)
	}
	return nil
}

func (t *StdioTransport) serveLine(ctx context.Context, line []byte) error {
	requests, batch, err := DecodeBody(line)
	if err != nil {
		return t.write(NewError(nil, CodeBadRequest, "Bad Request: malformed JSON-RPC body"))
	}

	if t.preflight != nil && HasTavilyToolsCall(line) {
		if err := t.preflight.Preflight(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("preflight failed")
			var pfe *keypool.PreflightError
			if !errors.As(err, &pfe) {
				return t.write(NewError(firstID(requests), CodeInternal, "Internal error"))
			}
			return t.write(preflightResponse(firstID(requests), pfe))
		}
	}

	responses := make([]Response, 0, len(requests))
	for _, req := range requests {
		if isNotification(req) {
			t.dispatcher.Dispatch(ctx, req)
			continue
		}
		responses = append(responses, t.dispatcher.Dispatch(ctx, req))
	}

	if len(responses) == 0 {
		return nil
	}
	if batch {
		return t.writeBatch(responses)
	}
	return t.write(responses[0])
}

// isNotification reports whether the request carries no id and therefore
// expects no response.
func isNotification(req Request) bool {
	return req.ID == nil && strings.HasPrefix(req.Method, "notifications/")
}

func (t *StdioTransport) write(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(t.out, string(data))
	return err
}

func (t *StdioTransport) writeBatch(responses []Response) error {
	data, err := json.Marshal(responses)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(t.out, string(data))
	return err
}
