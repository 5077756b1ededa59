package access

import (
	"context"

	"github.com/router-for-me/APIGateway/internal/ratelimit"
)

// Caller is the request-scoped identity resolved before rate limiting runs.
type Caller struct {
	UserID    uint64 // Zero for anonymous callers.
	Username  string
	APIKeyID  uint64
	RateLimit int // Per-user override; zero uses the class default.
	IP        string
}

// Authenticated reports whether credentials resolved to a user.
func (c Caller) Authenticated() bool { return c.UserID != 0 }

// Identity returns the rate limit key for the caller.
func (c Caller) Identity() ratelimit.Identity {
	if c.Authenticated() {
		return ratelimit.UserIdentity(c.UserID)
	}
	return ratelimit.IPIdentity(c.IP)
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored by WithCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}
