package transfer

import (
	"context"
	"sync/atomic"
)

// CancellationToken is a cooperative abort flag shared between a controller and
// the copy worker. Cancelling never stops the worker directly; the worker polls
// IsCancelled between chunks and blocking reads watch Done.
type CancellationToken struct {
	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewCancellationToken creates a token that is also cancelled when parent is done.
// A nil parent means context.Background.
func NewCancellationToken(parent context.Context) *CancellationToken {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	t := &CancellationToken{ctx: ctx, cancel: cancel}
	context.AfterFunc(ctx, func() { t.cancelled.Store(true) })
	return t
}

// Cancel marks the token. Safe to call more than once and from any goroutine.
func (t *CancellationToken) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// IsCancelled reports whether Cancel was called (or the parent context ended).
func (t *CancellationToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once the token is cancelled.
func (t *CancellationToken) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context exposes the token to APIs that take a context.
func (t *CancellationToken) Context() context.Context {
	return t.ctx
}
