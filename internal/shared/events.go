package shared

import (
	"context"
	"time"
)

// TokenEventKind names a session token transition.
type TokenEventKind string

const (
	// TokenSet fires when a session gains a token (login).
	TokenSet TokenEventKind = "token_set"
	// TokenCleared fires when a session loses its token (logout).
	TokenCleared TokenEventKind = "token_cleared"
)

// TokenEvent describes a committed token transition.
type TokenEvent struct {
	Kind      TokenEventKind
	SessionID string
	User      string
	At        time.Time
}

// TokenListener is notified after a session commit changes token presence.
// Implementations must not block.
type TokenListener interface {
	OnTokenEvent(ctx context.Context, ev TokenEvent)
}

// TokenListenerFunc adapts a function to TokenListener.
type TokenListenerFunc func(ctx context.Context, ev TokenEvent)

// OnTokenEvent calls f.
func (f TokenListenerFunc) OnTokenEvent(ctx context.Context, ev TokenEvent) {
	f(ctx, ev)
}
