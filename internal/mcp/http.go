package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/searchbridge/searchbridge/internal/auth"
	"github.com/searchbridge/searchbridge/internal/keypool"
	"github.com/searchbridge/searchbridge/internal/reqctx"
)

const maxBodyBytes = 4 << 20

// Preflighter runs the upstream credit check before tavily traffic is
// admitted.
type Preflighter interface {
	Preflight(ctx context.Context) error
}

// HTTPHandler serves the MCP surface over HTTP: POST for JSON-RPC, GET for
// server info and SSE upgrade.
type HTTPHandler struct {
	auth       *auth.Authenticator
	sessions   *Sessions
	dispatcher *Dispatcher
	preflight  Preflighter // nil when Tavily has no key pool
	info       ServerInfo
}

// NewHTTPHandler wires the MCP HTTP surface onto a mux.
func NewHTTPHandler(authenticator *auth.Authenticator, sessions *Sessions, dispatcher *Dispatcher, preflight Preflighter, info ServerInfo) http.Handler {
	h := &HTTPHandler{
		auth:       authenticator,
		sessions:   sessions,
		dispatcher: dispatcher,
		preflight:  preflight,
		info:       info,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck // health check write error is non-critical
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("POST /", http.HandlerFunc(h.handlePost))
	mux.Handle("GET /", http.HandlerFunc(h.handleGet))

	return requestLogMiddleware(mux)
}

// requestLogMiddleware stamps each request with an id and a scoped logger.
func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		logger := log.With().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
		logger.Debug().Dur("duration", time.Since(start)).Msg("request handled")
	})
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if acceptsSSEOnly(r.Header.Get("Accept")) {
		h.handleSSEStream(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck // info write error is non-critical
	json.NewEncoder(w).Encode(map[string]any{
		"name":            h.info.Name,
		"version":         h.info.Version,
		"protocolVersion": ProtocolVersion,
		"transport":       "http",
	})
}

// handleSSEStream holds a server-push channel open. The bridge has no
// server-initiated messages, so the stream only carries keepalive comments
// until the client disconnects.
func (h *HTTPHandler) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticate(r); err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	if _, ok := h.sessions.Touch(r.Header.Get(SessionHeader)); !ok {
		h.writeSessionError(w, r)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *HTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	token, err := h.authenticate(r)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	ctx := reqctx.With(r.Context(), reqctx.Info{
		TokenID:     token.ID,
		TokenPrefix: token.Prefix,
	})
	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("token_prefix", token.Prefix)
	})

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeResponses(w, r, http.StatusBadRequest, false, NewError(nil, CodeBadRequest, "Bad Request: unreadable body"))
		return
	}

	requests, batch, err := DecodeBody(body)
	if err != nil {
		writeResponses(w, r, http.StatusBadRequest, false, NewError(nil, CodeBadRequest, "Bad Request: malformed JSON-RPC body"))
		return
	}

	if _, ok := h.resolveSession(r, w, requests, token.ID); !ok {
		return
	}

	if h.preflight != nil && HasTavilyToolsCall(body) {
		if err := h.preflight.Preflight(ctx); err != nil {
			h.writePreflightError(w, r, requests, err)
			return
		}
	}

	responses := make([]Response, 0, len(requests))
	for _, req := range requests {
		responses = append(responses, h.dispatcher.Dispatch(ctx, req))
	}

	if !batch && len(responses) == 1 {
		setRetryAfter(w, responses[0])
	}
	writeResponses(w, r, statusFor(batch, responses), batch, responses...)
}

// resolveSession creates a session for initialize requests and validates
// the mcp-session-id header for everything else.
func (h *HTTPHandler) resolveSession(r *http.Request, w http.ResponseWriter, requests []Request, tokenID string) (string, bool) {
	for _, req := range requests {
		if req.Method == "initialize" {
			sess := h.sessions.Create(tokenID)
			w.Header().Set(SessionHeader, sess.ID)
			return sess.ID, true
		}
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		writeResponses(w, r, http.StatusBadRequest, false,
			NewError(nil, CodeBadRequest, "Bad Request: No valid session ID provided"))
		return "", false
	}
	if _, ok := h.sessions.Touch(sessionID); !ok {
		h.writeSessionError(w, r)
		return "", false
	}
	return sessionID, true
}

func (h *HTTPHandler) authenticate(r *http.Request) (auth.ClientToken, error) {
	return h.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
}

func (h *HTTPHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Warn().Err(err).Msg("authentication failed")
	writeResponses(w, r, http.StatusUnauthorized, false,
		NewError(nil, CodeAuth, "Unauthorized: invalid or missing bearer token"))
}

func (h *HTTPHandler) writeSessionError(w http.ResponseWriter, r *http.Request) {
	writeResponses(w, r, http.StatusBadRequest, false,
		NewError(nil, CodeBadRequest, "Session not found"))
}

func (h *HTTPHandler) writePreflightError(w http.ResponseWriter, r *http.Request, requests []Request, err error) {
	var pfe *keypool.PreflightError
	if !errors.As(err, &pfe) {
		writeResponses(w, r, http.StatusInternalServerError, false,
			NewError(firstID(requests), CodeInternal, "Internal error"))
		return
	}

	if pfe.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(pfe.RetryAfter.Seconds())))
	}
	writeResponses(w, r, pfe.Status, false, preflightResponse(firstID(requests), pfe))
}

// preflightResponse maps a preflight failure onto a JSON-RPC error carrying
// the upstream's own message and retry hint.
func preflightResponse(id any, pfe *keypool.PreflightError) Response {
	return Response{
		JSONRPC: Version,
		ID:      id,
		Error: &RPCError{
			Code:    CodeBadRequest,
			Message: pfe.Message,
			Data:    map[string]any{"retryAfterMs": pfe.RetryAfter.Milliseconds()},
		},
	}
}

func firstID(requests []Request) any {
	for _, req := range requests {
		if req.ID != nil {
			return req.ID
		}
	}
	return nil
}

// statusFor maps a single error response to its HTTP status; batches are
// always 200 and carry per-item errors inline.
func statusFor(batch bool, responses []Response) int {
	if batch || len(responses) != 1 || responses[0].Error == nil {
		return http.StatusOK
	}
	switch responses[0].Error.Code {
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeMethodNotFound, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// setRetryAfter mirrors a rate-limited error's retry hint into the
// Retry-After header, rounded up to whole seconds.
func setRetryAfter(w http.ResponseWriter, resp Response) {
	if resp.Error == nil || resp.Error.Code != CodeRateLimited {
		return
	}
	data, ok := resp.Error.Data.(map[string]any)
	if !ok {
		return
	}
	ms, ok := data["retryAfterMs"].(int64)
	if !ok || ms <= 0 {
		return
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", (ms+999)/1000))
}

// writeResponses encodes responses as SSE frames when the client accepts
// only event streams, plain JSON otherwise.
func writeResponses(w http.ResponseWriter, r *http.Request, status int, batch bool, responses ...Response) {
	if acceptsSSEOnly(r.Header.Get("Accept")) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(status)
		if err := WriteSSE(w, responses...); err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("sse write failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var payload any = responses
	if !batch && len(responses) == 1 {
		payload = responses[0]
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("response write failed")
	}
}

// acceptsSSEOnly reports whether the client asked for event-stream framing
// without also accepting plain JSON.
func acceptsSSEOnly(accept string) bool {
	return strings.Contains(accept, "text/event-stream") &&
		!strings.Contains(accept, "application/json")
}
