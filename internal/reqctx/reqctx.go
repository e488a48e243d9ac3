// Package reqctx carries request-scoped client identity through call chains.
//
// Any code reached while serving an MCP request sees the calling request's
// identity via From. Work initiated outside a request (retention cleanup,
// shutdown hooks) sees no identity and must tolerate its absence.
package reqctx

import (
	"context"
	"sync"
)

type ctxKey struct{}

type upstreamKeyCtxKey struct{}

// UpstreamKey is a per-call slot recording which upstream API key served
// the request. The provider layer writes it, the usage log reads it.
type UpstreamKey struct {
	mu sync.Mutex
	id string
}

// Set records the key id. The last writer wins.
func (k *UpstreamKey) Set(id string) {
	k.mu.Lock()
	k.id = id
	k.mu.Unlock()
}

// ID returns the recorded key id, empty when nothing was recorded.
func (k *UpstreamKey) ID() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.id
}

// WithUpstreamKey installs a fresh upstream-key slot on the context and
// returns it alongside the child context.
func WithUpstreamKey(ctx context.Context) (context.Context, *UpstreamKey) {
	rec := &UpstreamKey{}
	return context.WithValue(ctx, upstreamKeyCtxKey{}, rec), rec
}

// RecordUpstreamKey writes the key id into the context's slot. Calls made
// outside a request carry no slot and the record is dropped.
func RecordUpstreamKey(ctx context.Context, id string) {
	if rec, ok := ctx.Value(upstreamKeyCtxKey{}).(*UpstreamKey); ok {
		rec.Set(id)
	}
}

// Info identifies the client behind the current request.
type Info struct {
	// TokenID is the stable identity of the accepted client token.
	TokenID string
	// TokenPrefix is the display prefix of the token (safe to log).
	TokenPrefix string
	// RawToken is the full bearer token as presented. It must never be
	// logged or included in error messages.
	RawToken string
}

// With returns a child context carrying the given identity.
func With(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// From extracts the request identity from the context.
// The second return is false when the context carries no identity.
func From(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(ctxKey{}).(Info)
	return info, ok
}
